// internal/models/license.go
package models

import (
	"time"
)

// License is the persisted artifact of an issued order. The key is
// immutable after creation; status and bindings are mutated only by
// the license service.
type License struct {
	BaseModel
	LicenseKey string `json:"license_key" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserEmail  string `json:"user_email" gorm:"type:varchar(255);not null;index"`
	AppID      string `json:"app_id" gorm:"type:varchar(100);not null;index"`

	Status       LicenseStatus `json:"status" gorm:"type:varchar(20);default:'active';not null;index"`
	ExpiresAt    *time.Time    `json:"expires_at"`
	LastVerified *time.Time    `json:"last_verified"`

	// Payment data (copied from the originating order, never interpreted)
	OrderID          *string `json:"order_id,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	PaymentReference string  `json:"payment_reference,omitempty" gorm:"type:varchar(100)"`
	Amount           float64 `json:"amount,omitempty"`
	Currency         string  `json:"currency,omitempty" gorm:"type:varchar(10);default:'USD'"`

	// Device binding. MaxDevices == 0 means unlimited.
	MaxDevices   int        `json:"max_devices" gorm:"default:1"`
	BoundDevices DeviceList `json:"bound_devices" gorm:"type:jsonb"`

	Meta JSONB `json:"meta,omitempty" gorm:"type:jsonb"`
}

// IsExpired reports whether the license has an expiry in the past.
// Status transitions happen lazily in the service, not here.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Bound reports whether at least one device slot is consumed. A
// license with zero bindings validates freely until first activation.
func (l *License) Bound() bool {
	return len(l.BoundDevices) > 0
}
