package models

import "time"

// NotificationJob is handed to the dispatcher after a registration commits.
type NotificationJob struct {
	RegistrationID string    `json:"registration_id"`
	Phone          string    `json:"phone"`
	Reference      string    `json:"reference_number"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}
