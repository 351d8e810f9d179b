package allocation

import "strings"

const (
	minE164Digits = 8
	maxE164Digits = 15
)

// NormalizeContact reduces a phone number to the form used as the cooldown key.
func NormalizeContact(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.HasPrefix(cleaned, "+"):
		digits := cleaned[1:]
		if strings.Contains(digits, "+") || len(digits) < minE164Digits || len(digits) > maxE164Digits {
			return "", ErrInvalidContact
		}
		return cleaned, nil
	case strings.Contains(cleaned, "+"):
		return "", ErrInvalidContact
	case len(cleaned) == 10:
		return "+1" + cleaned, nil
	case len(cleaned) == 11 && cleaned[0] == '1':
		return "+" + cleaned, nil
	default:
		return "", ErrInvalidContact
	}
}
