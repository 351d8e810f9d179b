package allocation

import (
	"time"

	"ms-distribution/internal/models"
)

// ValidateToken resolves a token (with its Event loaded) to the event snapshot
// it admits into. Checks run in a fixed order so an expired token is always
// reported as expired, whatever the state of the event.
func ValidateToken(token *models.AdmissionToken, now time.Time) (models.EventSnapshot, error) {
	if token == nil || !token.IsActive || token.Event == nil {
		return models.EventSnapshot{}, ErrTokenNotFound
	}
	if !now.Before(token.ExpiresAt) {
		return models.EventSnapshot{}, ErrTokenExpired
	}
	return ValidateEvent(token.Event, now)
}

// ValidateEvent checks that event is active and now falls inside its window.
func ValidateEvent(event *models.Event, now time.Time) (models.EventSnapshot, error) {
	if event == nil || !event.IsActive {
		return models.EventSnapshot{}, ErrEventInactive
	}
	if now.Before(event.StartsAt) || now.After(event.EndsAt) {
		return models.EventSnapshot{}, ErrOutsideWindow
	}
	return event.Snapshot(), nil
}
