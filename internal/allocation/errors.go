package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies why a registration attempt was rejected.
type Kind string

const (
	KindInvalidContact      Kind = "invalid_contact"
	KindInvalidInput        Kind = "invalid_input"
	KindTokenNotFound       Kind = "token_not_found"
	KindTokenExpired        Kind = "token_expired"
	KindTokenInactive       Kind = "token_inactive"
	KindEventInactive       Kind = "event_inactive"
	KindOutsideWindow       Kind = "outside_window"
	KindCooldownActive      Kind = "cooldown_active"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindDuplicateReference  Kind = "duplicate_reference"
	KindPersistenceFailure  Kind = "persistence_failure"
	KindNotificationFailure Kind = "notification_failure"
)

// Rejection is the error value returned for every failed registration.
// Business rejections and storage failures share this type so callers can
// switch on Kind without string matching.
type Rejection struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

// QuotaDetails accompanies KindQuotaExceeded.
type QuotaDetails struct {
	Capacity int `json:"capacity"`
	Used     int `json:"used"`
}

// CooldownDetails accompanies KindCooldownActive.
type CooldownDetails struct {
	LastSubmittedAt time.Time `json:"last_submitted_at"`
	DaysRemaining   int       `json:"days_remaining"`
}

func (r *Rejection) Error() string {
	msg := r.Message
	if msg == "" {
		msg = string(r.Kind)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", msg, r.Err)
	}
	return msg
}

func (r *Rejection) Unwrap() error { return r.Err }

// Is matches any Rejection of the same Kind, so errors.Is(err, ErrQuotaExceeded)
// holds regardless of details.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Kind == r.Kind
}

// Retryable reports whether the caller may resubmit the same request.
func (r *Rejection) Retryable() bool {
	return r.Kind == KindPersistenceFailure
}

var (
	ErrInvalidContact     = &Rejection{Kind: KindInvalidContact, Message: "invalid phone number, use +1234567890 or 1234567890 format"}
	ErrInvalidInput       = &Rejection{Kind: KindInvalidInput, Message: "invalid registration data"}
	ErrTokenNotFound      = &Rejection{Kind: KindTokenNotFound, Message: "admission token not found"}
	ErrTokenExpired       = &Rejection{Kind: KindTokenExpired, Message: "admission token has expired"}
	ErrTokenInactive      = &Rejection{Kind: KindTokenInactive, Message: "admission token is inactive"}
	ErrEventInactive      = &Rejection{Kind: KindEventInactive, Message: "distribution event is not active"}
	ErrOutsideWindow      = &Rejection{Kind: KindOutsideWindow, Message: "submission period is not active"}
	ErrCooldownActive     = &Rejection{Kind: KindCooldownActive, Message: "a registration was already made in the cooldown period"}
	ErrQuotaExceeded      = &Rejection{Kind: KindQuotaExceeded, Message: "event quota has been reached"}
	ErrDuplicateReference = &Rejection{Kind: KindDuplicateReference, Message: "reference number already issued"}
	ErrPersistence        = &Rejection{Kind: KindPersistenceFailure, Message: "registration could not be stored"}
)

func invalidInput(msg string) *Rejection {
	return &Rejection{Kind: KindInvalidInput, Message: msg}
}

func quotaExceeded(capacity, used int) *Rejection {
	return &Rejection{
		Kind:    KindQuotaExceeded,
		Message: ErrQuotaExceeded.Message,
		Details: QuotaDetails{Capacity: capacity, Used: used},
	}
}

func cooldownActive(last time.Time, daysRemaining int) *Rejection {
	return &Rejection{
		Kind:    KindCooldownActive,
		Message: ErrCooldownActive.Message,
		Details: CooldownDetails{LastSubmittedAt: last, DaysRemaining: daysRemaining},
	}
}

// PersistenceFailure wraps a storage or transaction error.
func PersistenceFailure(err error) *Rejection {
	return &Rejection{Kind: KindPersistenceFailure, Message: ErrPersistence.Message, Err: err}
}

// KindOf extracts the Kind of err. Unknown errors are persistence failures.
func KindOf(err error) Kind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return KindPersistenceFailure
}

// classify maps anything escaping the allocation transaction onto the taxonomy.
func classify(err error) *Rejection {
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return PersistenceFailure(fmt.Errorf("allocation timed out: %w", err))
	}
	return PersistenceFailure(err)
}
