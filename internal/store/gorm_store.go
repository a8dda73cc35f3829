// internal/store/gorm_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solunex/core-backend/internal/models"
)

type GormLicenseStore struct {
	db *gorm.DB
}

func NewGormLicenseStore(db *gorm.DB) *GormLicenseStore {
	return &GormLicenseStore{db: db}
}

func (s *GormLicenseStore) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	err := s.db.WithContext(ctx).Where("license_key = ?", key).First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

func (s *GormLicenseStore) FindByOrderID(ctx context.Context, orderID string) (*models.License, error) {
	var license models.License
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

func (s *GormLicenseStore) FindActiveByEmailAndProduct(ctx context.Context, email, appID string) (*models.License, error) {
	var license models.License
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND app_id = ? AND status <> ?", email, appID, models.LicenseStatusRevoked).
		First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

func (s *GormLicenseStore) Insert(ctx context.Context, license *models.License) error {
	err := s.db.WithContext(ctx).Create(license).Error
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Disambiguate which unique constraint fired: if a row with
		// this order id exists, someone else already issued it.
		if license.OrderID != nil {
			var count int64
			s.db.WithContext(ctx).Model(&models.License{}).
				Where("order_id = ?", *license.OrderID).Count(&count)
			if count > 0 {
				return ErrDuplicateOrder
			}
		}
		return ErrDuplicateKey
	}

	return fmt.Errorf("failed to insert license: %w", err)
}

func (s *GormLicenseStore) UpdateWithLock(ctx context.Context, key string, mutate func(*models.License) error) (*models.License, error) {
	var license models.License

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("license_key = ?", key).First(&license).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		if err := mutate(&license); err != nil {
			return err
		}

		return tx.Save(&license).Error
	})

	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (s *GormLicenseStore) Touch(ctx context.Context, key string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.License{}).
		Where("license_key = ?", key).
		Update("last_verified", now).Error
}
