package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is a capacity-bounded, time-boxed distribution window.
type Event struct {
	bun.BaseModel `bun:"table:distribution_events"`

	ID          string    `bun:"id,pk" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description,nullzero" json:"description,omitempty"`
	StartsAt    time.Time `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt      time.Time `bun:"ends_at,notnull" json:"ends_at"`
	Capacity    int       `bun:"capacity,notnull" json:"capacity"`
	IsActive    bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// EventSnapshot is the immutable view of an event used by one allocation.
type EventSnapshot struct {
	EventID  string    `json:"event_id"`
	Capacity int       `json:"capacity"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (e Event) Snapshot() EventSnapshot {
	return EventSnapshot{
		EventID:  e.ID,
		Capacity: e.Capacity,
		StartsAt: e.StartsAt,
		EndsAt:   e.EndsAt,
	}
}

// EventWithUsage pairs an event with its committed registration count.
type EventWithUsage struct {
	Event `bun:",extend"`
	Used  int `bun:"used,scanonly" json:"used"`
}

// EventOverview is the admin listing row: usage plus live admission tokens.
type EventOverview struct {
	Event        `bun:",extend"`
	Used         int `bun:"used,scanonly" json:"used"`
	ActiveTokens int `bun:"active_tokens,scanonly" json:"active_qr_codes"`
}
