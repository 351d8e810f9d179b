package api

import (
	"errors"
	"net/http"

	"ms-distribution/internal/allocation"
	"ms-distribution/internal/utils"
)

// StatusFor maps a rejection kind to its HTTP status.
func StatusFor(kind allocation.Kind) int {
	switch kind {
	case allocation.KindInvalidContact, allocation.KindInvalidInput:
		return http.StatusBadRequest
	case allocation.KindTokenNotFound:
		return http.StatusNotFound
	case allocation.KindTokenExpired, allocation.KindTokenInactive:
		return http.StatusGone
	case allocation.KindEventInactive, allocation.KindOutsideWindow:
		return http.StatusForbidden
	case allocation.KindCooldownActive, allocation.KindQuotaExceeded, allocation.KindDuplicateReference:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// WriteError renders err in the shared error envelope. Storage errors are
// reported without their cause.
func WriteError(w http.ResponseWriter, err error) {
	var r *allocation.Rejection
	if !errors.As(err, &r) {
		r = allocation.PersistenceFailure(err)
	}
	status := StatusFor(r.Kind)
	if r.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(string(r.Kind), r.Message, r.Details))
}
