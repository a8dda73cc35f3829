// internal/store/memory_store.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solunex/core-backend/internal/models"
)

// MemoryLicenseStore is a process-local LicenseStore with the same
// uniqueness and locking semantics as the Postgres store. Used by the
// service tests and by single-binary demo setups.
type MemoryLicenseStore struct {
	mtx      sync.Mutex
	byKey    map[string]*models.License
	byOrder  map[string]string // order id -> license key
}

func NewMemoryLicenseStore() *MemoryLicenseStore {
	return &MemoryLicenseStore{
		byKey:   make(map[string]*models.License),
		byOrder: make(map[string]string),
	}
}

func (s *MemoryLicenseStore) FindByKey(_ context.Context, key string) (*models.License, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	license, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *license
	return &copied, nil
}

func (s *MemoryLicenseStore) FindByOrderID(_ context.Context, orderID string) (*models.License, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.byKey[key]
	return &copied, nil
}

func (s *MemoryLicenseStore) FindActiveByEmailAndProduct(_ context.Context, email, appID string) (*models.License, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, license := range s.byKey {
		if license.UserEmail == email && license.AppID == appID && license.Status != models.LicenseStatusRevoked {
			copied := *license
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryLicenseStore) Insert(_ context.Context, license *models.License) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if license.OrderID != nil {
		if _, exists := s.byOrder[*license.OrderID]; exists {
			return ErrDuplicateOrder
		}
	}
	if _, exists := s.byKey[license.LicenseKey]; exists {
		return ErrDuplicateKey
	}

	if license.ID == uuid.Nil {
		license.ID = uuid.New()
	}
	now := time.Now().UTC()
	license.CreatedAt = now
	license.UpdatedAt = now

	copied := *license
	s.byKey[license.LicenseKey] = &copied
	if license.OrderID != nil {
		s.byOrder[*license.OrderID] = license.LicenseKey
	}
	return nil
}

func (s *MemoryLicenseStore) UpdateWithLock(_ context.Context, key string, mutate func(*models.License) error) (*models.License, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	license, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Mutate a copy so a failed mutation leaves nothing applied.
	working := *license
	if err := mutate(&working); err != nil {
		return nil, err
	}

	working.UpdatedAt = time.Now().UTC()
	s.byKey[key] = &working

	copied := working
	return &copied, nil
}

func (s *MemoryLicenseStore) Touch(_ context.Context, key string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	license, ok := s.byKey[key]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	license.LastVerified = &now
	return nil
}

// Count reports the number of stored licenses; test helper.
func (s *MemoryLicenseStore) Count() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.byKey)
}
