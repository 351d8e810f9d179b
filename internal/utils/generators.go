package utils

import "github.com/google/uuid"

// NewID returns a random UUID v4 string used as a primary key.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s parses as a UUID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
