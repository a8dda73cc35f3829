// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusRevoked LicenseStatus = "revoked"
	LicenseStatusExpired LicenseStatus = "expired"
)

// BoundDevice is one consumed device slot on a license.
type BoundDevice struct {
	DeviceID string            `json:"device_id"`
	BoundAt  time.Time         `json:"bound_at"`
	LastSeen time.Time         `json:"last_seen"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// DeviceList is stored as a JSON column, matching the shape clients
// already consume: an ordered array of binding objects.
type DeviceList []BoundDevice

func (d DeviceList) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(DeviceList{})
	}
	return json.Marshal(d)
}

func (d *DeviceList) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, d)
}

// Find returns the binding for deviceID, or nil.
func (d DeviceList) Find(deviceID string) *BoundDevice {
	for i := range d {
		if d[i].DeviceID == deviceID {
			return &d[i]
		}
	}
	return nil
}
