// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/solunex/core-backend/internal/models"
)

var (
	// ErrNotFound is a lookup miss, distinct from infrastructure errors.
	ErrNotFound = errors.New("license not found")

	// ErrDuplicateKey means the candidate license key already exists.
	// The issuance orchestrator retries generation on this.
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrDuplicateOrder means another writer already issued a license
	// for this order id. The orchestrator re-fetches instead of failing.
	ErrDuplicateOrder = errors.New("order id already has a license")
)

// LicenseStore is the persistence seam the state machine and the
// issuance orchestrator share. Implementations must enforce key and
// order-id uniqueness at the storage level.
type LicenseStore interface {
	FindByKey(ctx context.Context, key string) (*models.License, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.License, error)
	FindActiveByEmailAndProduct(ctx context.Context, email, appID string) (*models.License, error)

	// Insert persists a new license row. Uniqueness violations surface
	// as ErrDuplicateOrder (order id) or ErrDuplicateKey (license key).
	Insert(ctx context.Context, license *models.License) error

	// UpdateWithLock runs mutate over the row under an exclusive
	// row-level lock; concurrent mutations of the same key serialize
	// here. The mutated row is persisted iff mutate returns nil.
	UpdateWithLock(ctx context.Context, key string, mutate func(*models.License) error) (*models.License, error)

	// Touch updates last_verified without locking. Lost updates to
	// this one timestamp are tolerable; validation stays on the cheap
	// path. Nothing else may be written here: status transitions go
	// through UpdateWithLock only, so a concurrent revoke can never be
	// overwritten by a stale read.
	Touch(ctx context.Context, key string) error
}
