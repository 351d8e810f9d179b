package allocation

import (
	"fmt"
	"strings"

	"ms-distribution/internal/models"
)

const DefaultReferencePrefix = "FB"

// NextReference derives the reference and ordinal for the registration that
// follows used committed ones. It must be called while the event lock is held.
func NextReference(prefix string, event models.EventSnapshot, used int) (string, int) {
	seq := used + 1
	return fmt.Sprintf("%s-%s-%s-%03d",
		prefix,
		event.StartsAt.UTC().Format("20060102"),
		eventCode(event.EventID),
		seq,
	), seq
}

func eventCode(eventID string) string {
	code := strings.ToUpper(strings.ReplaceAll(eventID, "-", ""))
	if len(code) > 6 {
		code = code[:6]
	}
	return code
}
