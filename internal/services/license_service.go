// internal/services/license_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solunex/core-backend/internal/models"
	"github.com/solunex/core-backend/internal/store"
)

// Outcome is the closed result set of validate/activate. Callers map
// these to transport status codes; no free-form text crosses the seam.
type Outcome string

const (
	OutcomeActive             Outcome = "active"
	OutcomeCanBind            Outcome = "can_bind"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeRevoked            Outcome = "revoked"
	OutcomeExpired            Outcome = "expired"
	OutcomeAppMismatch        Outcome = "app_mismatch"
	OutcomeRequiresDevice     Outcome = "requires_device"
	OutcomeDeviceLimitReached Outcome = "device_limit_reached"
)

// ErrLicenseRevoked guards renew: revoked is terminal.
var ErrLicenseRevoked = errors.New("license is revoked")

// errNoMutation aborts an UpdateWithLock without persisting anything.
var errNoMutation = errors.New("no mutation")

type VerificationResult struct {
	Outcome Outcome
	License *models.License // nil when Outcome is OutcomeNotFound
}

// Valid reports whether the outcome lets the client proceed.
func (r *VerificationResult) Valid() bool {
	return r.Outcome == OutcomeActive || r.Outcome == OutcomeCanBind
}

type LicenseService struct {
	store                 store.LicenseStore
	notificationService   *NotificationService
	allowSingleSeatRebind bool
	now                   func() time.Time
}

func NewLicenseService(licenseStore store.LicenseStore, notificationService *NotificationService, allowSingleSeatRebind bool) *LicenseService {
	return &LicenseService{
		store:                 licenseStore,
		notificationService:   notificationService,
		allowSingleSeatRebind: allowSingleSeatRebind,
		now:                   time.Now,
	}
}

// Validate checks a key without ever consuming a device slot. A
// license with zero bindings validates freely; binding is established
// only by Activate. The expired transition is lazy: it happens on the
// first read after the expiry instant and is persisted.
func (s *LicenseService) Validate(ctx context.Context, key, deviceID, appID string) (*VerificationResult, error) {
	license, err := s.store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &VerificationResult{Outcome: OutcomeNotFound}, nil
		}
		return nil, err
	}

	now := s.now().UTC()

	if license.Status == models.LicenseStatusRevoked {
		return &VerificationResult{Outcome: OutcomeRevoked, License: license}, nil
	}

	if license.IsExpired(now) {
		return s.markExpired(ctx, key)
	}

	if appID != "" && license.AppID != appID {
		return &VerificationResult{Outcome: OutcomeAppMismatch, License: license}, nil
	}

	if license.Bound() {
		if deviceID == "" {
			return &VerificationResult{Outcome: OutcomeRequiresDevice, License: license}, nil
		}

		if license.BoundDevices.Find(deviceID) != nil {
			s.touch(ctx, license)
			return &VerificationResult{Outcome: OutcomeActive, License: license}, nil
		}

		if license.MaxDevices == 0 || len(license.BoundDevices) < license.MaxDevices {
			return &VerificationResult{Outcome: OutcomeCanBind, License: license}, nil
		}

		// A single-seat license under the rebind policy would accept
		// this device by evicting the current one, so the slot is
		// reachable even though it is occupied.
		if license.MaxDevices == 1 && s.allowSingleSeatRebind {
			return &VerificationResult{Outcome: OutcomeCanBind, License: license}, nil
		}

		return &VerificationResult{Outcome: OutcomeDeviceLimitReached, License: license}, nil
	}

	// Never activated: validates freely until the first activation.
	s.touch(ctx, license)
	return &VerificationResult{Outcome: OutcomeActive, License: license}, nil
}

// Activate binds deviceID to the license, serialized under the row
// lock so concurrent bind attempts cannot oversubscribe slots.
func (s *LicenseService) Activate(ctx context.Context, key, deviceID string, meta map[string]string, appID string) (*VerificationResult, error) {
	var result VerificationResult

	updated, err := s.store.UpdateWithLock(ctx, key, func(license *models.License) error {
		now := s.now().UTC()
		snapshot := *license
		result.License = &snapshot

		if license.Status == models.LicenseStatusRevoked {
			result.Outcome = OutcomeRevoked
			return errNoMutation
		}

		if license.IsExpired(now) {
			license.Status = models.LicenseStatusExpired
			result.Outcome = OutcomeExpired
			return nil
		}

		if appID != "" && license.AppID != appID {
			result.Outcome = OutcomeAppMismatch
			return errNoMutation
		}

		// First activation: mark active; a supplied device id becomes
		// the first binding, otherwise no slot is consumed.
		if !license.Bound() {
			license.Status = models.LicenseStatusActive
			license.LastVerified = &now
			if deviceID != "" {
				license.BoundDevices = models.DeviceList{{DeviceID: deviceID, BoundAt: now, LastSeen: now, Meta: meta}}
			}
			result.Outcome = OutcomeActive
			return nil
		}

		if deviceID == "" {
			result.Outcome = OutcomeRequiresDevice
			return errNoMutation
		}

		// Re-activation from a bound device refreshes the binding.
		if device := license.BoundDevices.Find(deviceID); device != nil {
			device.LastSeen = now
			if len(meta) > 0 {
				device.Meta = meta
			}
			license.Status = models.LicenseStatusActive
			license.LastVerified = &now
			result.Outcome = OutcomeActive
			return nil
		}

		boundCount := len(license.BoundDevices)

		// Single-seat transfer: re-activation from a new device evicts
		// the previous binding. Last writer wins; policy-gated.
		if license.MaxDevices == 1 && boundCount >= 1 {
			if !s.allowSingleSeatRebind {
				result.Outcome = OutcomeDeviceLimitReached
				return errNoMutation
			}
			license.BoundDevices = models.DeviceList{{DeviceID: deviceID, BoundAt: now, LastSeen: now, Meta: meta}}
			license.Status = models.LicenseStatusActive
			license.LastVerified = &now
			result.Outcome = OutcomeActive
			return nil
		}

		if license.MaxDevices == 0 || boundCount < license.MaxDevices {
			license.BoundDevices = append(license.BoundDevices, models.BoundDevice{
				DeviceID: deviceID, BoundAt: now, LastSeen: now, Meta: meta,
			})
			license.Status = models.LicenseStatusActive
			license.LastVerified = &now
			result.Outcome = OutcomeActive
			return nil
		}

		result.Outcome = OutcomeDeviceLimitReached
		return errNoMutation
	})

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &VerificationResult{Outcome: OutcomeNotFound}, nil
		}
		if errors.Is(err, errNoMutation) {
			return &result, nil
		}
		return nil, err
	}

	result.License = updated
	return &result, nil
}

// Renew extends the expiry by extendDays from max(currentExpiry, now)
// and clears an expired status back to active. Revoked licenses never
// leave revoked.
func (s *LicenseService) Renew(ctx context.Context, key string, extendDays int) (*models.License, error) {
	license, err := s.store.UpdateWithLock(ctx, key, func(license *models.License) error {
		if license.Status == models.LicenseStatusRevoked {
			return ErrLicenseRevoked
		}

		now := s.now().UTC()
		base := now
		if license.ExpiresAt != nil && license.ExpiresAt.After(now) {
			base = *license.ExpiresAt
		}
		newExpiry := base.AddDate(0, 0, extendDays)

		license.ExpiresAt = &newExpiry
		license.Status = models.LicenseStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"license_key": license.LicenseKey,
		"expires_at":  license.ExpiresAt,
	}).Info("License renewed")

	if s.notificationService != nil {
		go s.notificationService.SendLicenseRenewedEmail(license)
	}

	return license, nil
}

// Revoke is terminal and idempotent: revoking a revoked license is a
// no-op success.
func (s *LicenseService) Revoke(ctx context.Context, key, reason string) error {
	alreadyRevoked := false

	license, err := s.store.UpdateWithLock(ctx, key, func(license *models.License) error {
		if license.Status == models.LicenseStatusRevoked {
			alreadyRevoked = true
			return errNoMutation
		}

		license.Status = models.LicenseStatusRevoked
		if reason != "" {
			if license.Meta == nil {
				license.Meta = models.JSONB{}
			}
			license.Meta["revocation_reason"] = reason
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errNoMutation) && alreadyRevoked {
			return nil
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"license_key": license.LicenseKey,
		"reason":      reason,
	}).Info("License revoked")

	if s.notificationService != nil {
		go s.notificationService.SendLicenseRevokedEmail(license, reason)
	}

	return nil
}

// Describe is the read-only view; no lazy transitions are persisted.
func (s *LicenseService) Describe(ctx context.Context, key string) (*models.License, error) {
	return s.store.FindByKey(ctx, key)
}

func (s *LicenseService) markExpired(ctx context.Context, key string) (*VerificationResult, error) {
	var result VerificationResult

	updated, err := s.store.UpdateWithLock(ctx, key, func(license *models.License) error {
		snapshot := *license
		result.License = &snapshot

		// Someone may have renewed or revoked between the read and
		// this lock; re-check before persisting.
		if license.Status == models.LicenseStatusRevoked {
			result.Outcome = OutcomeRevoked
			return errNoMutation
		}
		if !license.IsExpired(s.now().UTC()) {
			result.Outcome = OutcomeActive
			return errNoMutation
		}

		license.Status = models.LicenseStatusExpired
		result.Outcome = OutcomeExpired
		return nil
	})

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &VerificationResult{Outcome: OutcomeNotFound}, nil
		}
		if errors.Is(err, errNoMutation) {
			return &result, nil
		}
		return nil, err
	}

	result.License = updated
	return &result, nil
}

// touch refreshes last_verified on the lock-free path; a lost update
// to this single timestamp is tolerable. Status is never written here:
// a revoke or expiry committed after our read must not be clobbered by
// this stale snapshot.
func (s *LicenseService) touch(ctx context.Context, license *models.License) {
	now := s.now().UTC()
	license.LastVerified = &now

	if err := s.store.Touch(ctx, license.LicenseKey); err != nil {
		logrus.WithError(err).WithField("license_key", license.LicenseKey).
			Warn("Failed to update last_verified")
	}
}
