// internal/store/memory_store_test.go
package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solunex/core-backend/internal/models"
)

func orderID(id string) *string {
	return &id
}

func TestMemoryStoreInsertAndFind(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	license := &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		UserEmail:  "buyer@example.com",
		AppID:      "solunex-desktop",
		Status:     models.LicenseStatusActive,
		OrderID:    orderID("order-1"),
		MaxDevices: 1,
	}
	require.NoError(t, s.Insert(ctx, license))

	byKey, err := s.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", byKey.UserEmail)

	byOrder, err := s.FindByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "SOL-AAAA-BBBB-CCCC-12", byOrder.LicenseKey)

	byPair, err := s.FindActiveByEmailAndProduct(ctx, "buyer@example.com", "solunex-desktop")
	require.NoError(t, err)
	assert.Equal(t, "SOL-AAAA-BBBB-CCCC-12", byPair.LicenseKey)

	_, err = s.FindByKey(ctx, "SOL-MISSING-00")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByOrderID(ctx, "order-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUniqueness(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		OrderID:    orderID("order-1"),
	}))

	err := s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		OrderID:    orderID("order-2"),
	})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// The order id violation is reported ahead of the key violation:
	// the issuance retry loop treats them differently.
	err = s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		OrderID:    orderID("order-1"),
	})
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	assert.Equal(t, 1, s.Count())
}

func TestMemoryStoreFindActiveSkipsRevoked(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &models.License{
		LicenseKey: "SOL-REVO-KED0-0000-00",
		UserEmail:  "buyer@example.com",
		AppID:      "solunex-desktop",
		Status:     models.LicenseStatusRevoked,
	}))

	_, err := s.FindActiveByEmailAndProduct(ctx, "buyer@example.com", "solunex-desktop")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateWithLockAbort(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		Status:     models.LicenseStatusActive,
	}))

	abort := errors.New("abort")
	_, err := s.UpdateWithLock(ctx, "SOL-AAAA-BBBB-CCCC-12", func(l *models.License) error {
		l.Status = models.LicenseStatusRevoked
		return abort
	})
	assert.ErrorIs(t, err, abort)

	// The aborted mutation must not leak
	stored, err := s.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusActive, stored.Status)
}

func TestMemoryStoreUpdateWithLockApplies(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		Status:     models.LicenseStatusActive,
	}))

	updated, err := s.UpdateWithLock(ctx, "SOL-AAAA-BBBB-CCCC-12", func(l *models.License) error {
		l.Status = models.LicenseStatusRevoked
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusRevoked, updated.Status)

	stored, err := s.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusRevoked, stored.Status)
}

func TestMemoryStoreCopyOnRead(t *testing.T) {
	s := NewMemoryLicenseStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		Status:     models.LicenseStatusActive,
	}))

	read, err := s.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	read.Status = models.LicenseStatusRevoked

	stored, err := s.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusActive, stored.Status, "callers must not mutate stored state through reads")
}
