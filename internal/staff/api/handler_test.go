package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-distribution/internal/allocation"
	allocationdb "ms-distribution/internal/allocation/db"
	"ms-distribution/internal/database"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
	"ms-distribution/internal/staff"
	"ms-distribution/internal/staff/api"
	"ms-distribution/internal/staff/db"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	eventID      = "0a1b2c3d-0000-4000-8000-000000000001"
	liveToken    = "11111111-0000-4000-8000-000000000001"
	expiredToken = "22222222-0000-4000-8000-000000000002"
	offToken     = "33333333-0000-4000-8000-000000000003"
)

func setup(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	seed(t, bunDB,
		&models.Event{ID: eventID, Name: "Pantry", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), Capacity: 3, IsActive: true, CreatedAt: now},
		&models.AdmissionToken{ID: liveToken, EventID: eventID, ExpiresAt: now.Add(time.Hour), IsActive: true, CreatedAt: now},
		&models.AdmissionToken{ID: expiredToken, EventID: eventID, ExpiresAt: now.Add(-time.Minute), IsActive: true, CreatedAt: now},
		&models.AdmissionToken{ID: offToken, EventID: eventID, ExpiresAt: now.Add(time.Hour), IsActive: false, CreatedAt: now},
	)

	log := logger.NewDiscard()
	allocator := allocation.NewService(&allocationdb.DB{Bun: bunDB}, nil, log,
		allocation.WithClock(func() time.Time { return now }))
	svc := staff.NewStaffService(&db.DB{Bun: bunDB}, allocator, log)
	svc.Now = func() time.Time { return now }
	h := &api.Handler{Service: svc}

	r := chi.NewRouter()
	r.Get("/lookup/{tokenId}", h.Lookup)
	r.Post("/registrations", h.RegisterManually)
	r.Post("/registrations/{id}/pickup", h.ConfirmPickup)
	r.Get("/events/active", h.ActiveEvents)
	return r
}

func seed(t *testing.T, bunDB *bun.DB, rows ...interface{}) {
	t.Helper()
	for _, row := range rows {
		_, err := bunDB.NewInsert().Model(row).Exec(context.Background())
		require.NoError(t, err)
	}
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestManualRegistrationThenLookup(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/registrations", `{"event_id":"`+eventID+`","name":"Walk In","phone":"555-010-0001"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data models.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "FB-20240601-0A1B2C-001", created.Data.ReferenceNumber)

	rec = do(router, http.MethodGet, "/lookup/"+liveToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lookup struct {
		Data staff.TokenLookup `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	assert.Equal(t, 1, lookup.Data.Event.Used)
	assert.Equal(t, 2, lookup.Data.Remaining)
	require.Len(t, lookup.Data.Registrations, 1)
	assert.Equal(t, "+15550100001", lookup.Data.Registrations[0].Phone)
}

func TestLookupReportsTokenState(t *testing.T) {
	router := setup(t)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"expired", expiredToken, http.StatusGone, "token_expired"},
		{"inactive", offToken, http.StatusGone, "token_inactive"},
		{"unknown", "44444444-0000-4000-8000-000000000004", http.StatusNotFound, "token_not_found"},
		{"malformed", "not-a-uuid", http.StatusNotFound, "token_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodGet, "/lookup/"+tt.token, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
		})
	}
}

func TestManualRegistrationRejections(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/registrations", `{"name":"No Event","phone":"5550100001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/registrations", `{"event_id":"`+eventID+`","name":"Bad Phone","phone":"12"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"invalid_contact"`)
}

func TestConfirmPickup(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodPost, "/registrations", `{"event_id":"`+eventID+`","name":"Walk In","phone":"5550100001"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data models.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(router, http.MethodPost, "/registrations/"+created.Data.RegistrationID+"/pickup", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"pickup_confirmed":true`)

	rec = do(router, http.MethodPost, "/registrations/missing/pickup", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveEvents(t *testing.T) {
	router := setup(t)

	rec := do(router, http.MethodGet, "/events/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []models.EventWithUsage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, eventID, resp.Data[0].ID)
}
