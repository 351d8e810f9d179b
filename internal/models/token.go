package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AdmissionToken is the opaque credential encoded in a QR code. It admits
// registrations into exactly one event until it expires or is deactivated.
type AdmissionToken struct {
	bun.BaseModel `bun:"table:admission_tokens"`

	ID        string    `bun:"id,pk" json:"id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	IsActive  bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
}
