// internal/models/audit.go
package models

import (
	"time"
)

// APILog is the append-only audit trail. Rows are written
// fire-and-forget; a failed write never blocks the request path.
type APILog struct {
	ID        uint      `json:"id" gorm:"primary_key"`
	Actor     string    `json:"actor" gorm:"type:varchar(255);index"`
	Action    string    `json:"action" gorm:"type:varchar(100);index"`
	Endpoint  string    `json:"endpoint" gorm:"type:varchar(200)"`
	Details   JSONB     `json:"details" gorm:"type:jsonb"`
	IPAddress string    `json:"ip_address" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
