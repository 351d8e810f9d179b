package allocation

import (
	"time"

	"ms-distribution/internal/models"
)

const DefaultCooldown = 14 * 24 * time.Hour

// CheckCooldown rejects when last was submitted less than period before asOf.
// last is the most recent registration for the contact, or nil.
func CheckCooldown(last *models.Registration, asOf time.Time, period time.Duration) error {
	if last == nil {
		return nil
	}
	elapsed := asOf.Sub(last.SubmittedAt)
	if elapsed >= period {
		return nil
	}
	remaining := period - elapsed
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return cooldownActive(last.SubmittedAt, days)
}
