// internal/services/issuance_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solunex/core-backend/internal/config"
	"github.com/solunex/core-backend/internal/models"
	"github.com/solunex/core-backend/internal/store"
	"github.com/solunex/core-backend/internal/utils"
)

// ErrKeyspaceExhausted means key generation kept colliding past the
// retry budget. Collision probability is astronomically low, so this
// signals a deeper fault and must page, not retry.
var ErrKeyspaceExhausted = errors.New("unable to generate a unique license key")

// IdempotencyReason tags which dedupe rule matched for an issue call.
type IdempotencyReason string

const (
	IdempotentNone         IdempotencyReason = "none"
	IdempotentOrderID      IdempotencyReason = "order_id"
	IdempotentEmailProduct IdempotencyReason = "email_product"
)

// Order is the external purchase input. It is never persisted itself;
// the license it produces is the durable artifact.
type Order struct {
	OrderID          string  `json:"order_id,omitempty"`
	Email            string  `json:"email" validate:"required,email"`
	Name             string  `json:"name,omitempty"`
	Product          string  `json:"product" validate:"required,min=1,max=100"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	Amount           float64 `json:"amount,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	Days             int     `json:"days,omitempty" validate:"omitempty,min=1,max=7300"`
	MaxDevices       int     `json:"max_devices,omitempty" validate:"omitempty,min=-1,max=1000"`
}

type IssueResult struct {
	License    *models.License
	Idempotent IdempotencyReason
	Created    bool
}

// IssuanceService turns orders into licenses, exactly one per order id
// no matter how often the order is retried.
type IssuanceService struct {
	store               store.LicenseStore
	notificationService *NotificationService
	cfg                 config.LicenseConfig
	now                 func() time.Time
}

func NewIssuanceService(licenseStore store.LicenseStore, notificationService *NotificationService, cfg config.LicenseConfig) *IssuanceService {
	return &IssuanceService{
		store:               licenseStore,
		notificationService: notificationService,
		cfg:                 cfg,
		now:                 time.Now,
	}
}

// Issue resolves an order to a license:
//  1. a license already issued for the order id wins, payload ignored;
//  2. a non-revoked license for the same (email, product) wins;
//  3. otherwise a fresh key is generated and inserted, retrying on key
//     collisions. A duplicate-order violation on insert means a
//     concurrent call won the race; its row is returned instead.
func (s *IssuanceService) Issue(ctx context.Context, order *Order) (*IssueResult, error) {
	if err := utils.ValidateStruct(order); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if order.OrderID != "" {
		existing, err := s.store.FindByOrderID(ctx, order.OrderID)
		if err == nil {
			return &IssueResult{License: existing, Idempotent: IdempotentOrderID}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	existing, err := s.store.FindActiveByEmailAndProduct(ctx, order.Email, order.Product)
	if err == nil {
		return &IssueResult{License: existing, Idempotent: IdempotentEmailProduct}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	license, err := s.createLicense(ctx, order)
	if err != nil {
		return nil, err
	}
	if license == nil {
		// A concurrent call inserted the order's license first.
		existing, err := s.store.FindByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch concurrently issued license: %w", err)
		}
		return &IssueResult{License: existing, Idempotent: IdempotentOrderID}, nil
	}

	logrus.WithFields(logrus.Fields{
		"license_key": license.LicenseKey,
		"email":       license.UserEmail,
		"product":     license.AppID,
		"order_id":    order.OrderID,
	}).Info("License issued")

	if s.notificationService != nil {
		go s.notificationService.SendLicenseIssuedEmail(license, order.Name)
	}

	return &IssueResult{License: license, Idempotent: IdempotentNone, Created: true}, nil
}

// createLicense inserts a new row, regenerating the key on collisions.
// A nil, nil return means the order id was inserted by someone else.
func (s *IssuanceService) createLicense(ctx context.Context, order *Order) (*models.License, error) {
	days := order.Days
	if days <= 0 {
		days = s.cfg.DefaultValidityDays
	}
	maxDevices := order.MaxDevices
	if order.MaxDevices == 0 {
		maxDevices = 1 // unlimited seats must be requested explicitly via max_devices=-1
	}
	if order.MaxDevices < 0 {
		maxDevices = 0
	}
	currency := order.Currency
	if currency == "" {
		currency = "USD"
	}

	now := s.now().UTC()
	expiresAt := now.AddDate(0, 0, days)

	var orderID *string
	if order.OrderID != "" {
		orderID = &order.OrderID
	}

	for attempt := 0; attempt < s.cfg.MaxKeyAttempts; attempt++ {
		key, err := utils.GenerateLicenseKey(s.cfg.KeyPrefix, s.cfg.KeyRawLength, s.cfg.KeyBlockSize)
		if err != nil {
			return nil, fmt.Errorf("failed to generate license key: %w", err)
		}

		license := &models.License{
			LicenseKey:       key,
			UserEmail:        order.Email,
			AppID:            order.Product,
			Status:           models.LicenseStatusActive,
			ExpiresAt:        &expiresAt,
			OrderID:          orderID,
			PaymentReference: order.PaymentReference,
			Amount:           order.Amount,
			Currency:         currency,
			MaxDevices:       maxDevices,
			BoundDevices:     models.DeviceList{},
		}

		err = s.store.Insert(ctx, license)
		switch {
		case err == nil:
			return license, nil
		case errors.Is(err, store.ErrDuplicateOrder):
			return nil, nil
		case errors.Is(err, store.ErrDuplicateKey):
			logrus.WithField("attempt", attempt+1).Warn("License key collision, regenerating")
			continue
		default:
			return nil, err
		}
	}

	logrus.WithField("attempts", s.cfg.MaxKeyAttempts).Error("License keyspace exhausted")
	return nil, ErrKeyspaceExhausted
}
