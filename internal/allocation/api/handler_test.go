package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-distribution/internal/allocation"
	"ms-distribution/internal/allocation/api"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tokenID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, tokenID string, req models.RegistrationRequest) (models.Receipt, error) {
	args := m.Called(ctx, tokenID, req)
	return args.Get(0).(models.Receipt), args.Error(1)
}

func newRouter(svc api.Registrar) http.Handler {
	h := &api.Handler{Service: svc, Logger: logger.NewDiscard()}
	r := chi.NewRouter()
	r.Post("/api/submit/{tokenId}", h.Submit)
	return r
}

func submit(t *testing.T, router http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/submit/"+token, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitCreated(t *testing.T) {
	svc := &MockRegistrar{}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.On("Register", mock.Anything, tokenID, models.RegistrationRequest{Name: "Ada", Phone: "5551234567"}).
		Return(models.Receipt{ReferenceNumber: "FB-20240601-7C9E66-001", RegistrationID: "r1", SubmittedAt: at}, nil)

	rec := submit(t, newRouter(svc), tokenID, `{"name":"Ada","phone":"5551234567"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FB-20240601-7C9E66-001", body["reference_number"])
	assert.Equal(t, "r1", body["registration_id"])
	svc.AssertExpectations(t)
}

func TestSubmitRejections(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter bool
	}{
		{name: "invalid contact", err: allocation.ErrInvalidContact, status: http.StatusBadRequest, code: "invalid_contact"},
		{name: "unknown token", err: allocation.ErrTokenNotFound, status: http.StatusNotFound, code: "token_not_found"},
		{name: "expired", err: allocation.ErrTokenExpired, status: http.StatusGone, code: "token_expired"},
		{name: "inactive event", err: allocation.ErrEventInactive, status: http.StatusForbidden, code: "event_inactive"},
		{name: "outside window", err: allocation.ErrOutsideWindow, status: http.StatusForbidden, code: "outside_window"},
		{name: "cooldown", err: allocation.ErrCooldownActive, status: http.StatusConflict, code: "cooldown_active"},
		{name: "quota", err: allocation.ErrQuotaExceeded, status: http.StatusConflict, code: "quota_exceeded"},
		{name: "duplicate", err: allocation.ErrDuplicateReference, status: http.StatusConflict, code: "duplicate_reference"},
		{name: "storage", err: allocation.PersistenceFailure(errors.New("pq: lock timeout")), status: http.StatusServiceUnavailable, code: "persistence_failure", retryAfter: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockRegistrar{}
			svc.On("Register", mock.Anything, tokenID, mock.Anything).Return(models.Receipt{}, tc.err)

			rec := submit(t, newRouter(svc), tokenID, `{"name":"Ada","phone":"5551234567"}`)

			assert.Equal(t, tc.status, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.code, body["code"])
			assert.NotContains(t, body["error"], "pq:")
			if tc.retryAfter {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestSubmitQuotaDetails(t *testing.T) {
	svc := &MockRegistrar{}
	rej := &allocation.Rejection{
		Kind:    allocation.KindQuotaExceeded,
		Message: "event quota has been reached",
		Details: allocation.QuotaDetails{Capacity: 1, Used: 1},
	}
	svc.On("Register", mock.Anything, tokenID, mock.Anything).Return(models.Receipt{}, rej)

	rec := submit(t, newRouter(svc), tokenID, `{"name":"Ada","phone":"5551234567"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Details allocation.QuotaDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, allocation.QuotaDetails{Capacity: 1, Used: 1}, body.Details)
}

func TestSubmitMalformedInput(t *testing.T) {
	svc := &MockRegistrar{}
	router := newRouter(svc)

	rec := submit(t, router, "not-a-token", `{"name":"Ada","phone":"5551234567"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = submit(t, router, tokenID, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}
