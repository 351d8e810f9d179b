package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID                string    `bun:"id,pk" json:"id"`
	EventID           string    `bun:"event_id,notnull" json:"event_id"`
	Name              string    `bun:"name,notnull" json:"name"`
	Phone             string    `bun:"phone,notnull" json:"phone"`
	Email             string    `bun:"email,nullzero" json:"email,omitempty"`
	Reference         string    `bun:"reference,notnull,unique" json:"reference_number"`
	Sequence          int       `bun:"sequence,notnull" json:"sequence"`
	SubmittedAt       time.Time `bun:"submitted_at,notnull" json:"submitted_at"`
	PickupConfirmed   bool      `bun:"pickup_confirmed,notnull" json:"pickup_confirmed"`
	PickupConfirmedAt time.Time `bun:"pickup_confirmed_at,nullzero" json:"pickup_confirmed_at,omitempty"`
}

// RegistrationRequest is the citizen-supplied payload of a submission.
type RegistrationRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Receipt is returned to the caller once an allocation commits.
type Receipt struct {
	ReferenceNumber string    `json:"reference_number"`
	RegistrationID  string    `json:"registration_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
}
