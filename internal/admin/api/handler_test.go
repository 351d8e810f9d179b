package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-distribution/internal/admin"
	"ms-distribution/internal/admin/api"
	"ms-distribution/internal/admin/db"
	"ms-distribution/internal/admin/qr"
	"ms-distribution/internal/database"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newRouter(t *testing.T) http.Handler {
	r, _ := newRouterWithDB(t)
	return r
}

func newRouterWithDB(t *testing.T) (http.Handler, *bun.DB) {
	t.Helper()
	bunDB, err := database.OpenSQLite(context.Background(), "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	log := logger.NewDiscard()
	svc := admin.NewAdminService(&db.DB{Bun: bunDB}, qr.NewQRGenerator("http://localhost:5173", 64), log)
	h := &api.Handler{Service: svc, Logger: log}

	r := chi.NewRouter()
	r.Post("/events", h.CreateEvent)
	r.Post("/tokens", h.IssueToken)
	r.Get("/tokens/{tokenId}/qr.png", h.TokenQR)
	r.Get("/events", h.ListEvents)
	r.Patch("/events/{id}/active", h.SetEventActive)
	r.Get("/registrations", h.ListRegistrations)
	r.Put("/registrations/{id}", h.UpdateRegistration)
	return r, bunDB
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIssueTokenAndRenderQR(t *testing.T) {
	router := newRouter(t)
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)

	rec := do(router, http.MethodPost, "/events", `{"name":"Pantry","capacity":10,"starts_at":"`+start+`","ends_at":"`+end+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(router, http.MethodPost, "/tokens", `{"event_id":"`+created.Data.ID+`","hours_valid":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued struct {
		Data admin.IssuedToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Contains(t, issued.Data.URL, "/submit/"+issued.Data.TokenID)

	rec = do(router, http.MethodGet, "/tokens/"+issued.Data.TokenID+"/qr.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestAdminValidationErrors(t *testing.T) {
	router := newRouter(t)

	rec := do(router, http.MethodPost, "/events", `{"name":"Pantry","capacity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/tokens", `{"event_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/registrations?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/tokens/missing/qr.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func createEvent(t *testing.T, router http.Handler) string {
	t.Helper()
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)
	rec := do(router, http.MethodPost, "/events", `{"name":"Pantry","capacity":10,"starts_at":"`+start+`","ends_at":"`+end+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.Data.ID
}

func TestSetEventActive(t *testing.T) {
	router := newRouter(t)
	id := createEvent(t, router)

	rec := do(router, http.MethodPatch, "/events/"+id+"/active", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			IsActive bool `json:"is_active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.IsActive)

	rec = do(router, http.MethodPatch, "/events/"+id+"/active", `{"is_active":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsActive)

	rec = do(router, http.MethodPatch, "/events/"+id+"/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(router, http.MethodPatch, "/events/"+id+"/active", `{"is_active":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(router, http.MethodPatch, "/events/missing/active", `{"is_active":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEventsReportsActiveQRCodes(t *testing.T) {
	router := newRouter(t)
	id := createEvent(t, router)
	rec := do(router, http.MethodPost, "/tokens", `{"event_id":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.EqualValues(t, 1, resp.Data[0]["active_qr_codes"])
	assert.EqualValues(t, 0, resp.Data[0]["used"])
}

func TestUpdateRegistration(t *testing.T) {
	router, bunDB := newRouterWithDB(t)
	id := createEvent(t, router)
	reg := &models.Registration{
		ID:          "r1",
		EventID:     id,
		Name:        "Ada",
		Phone:       "+15550000001",
		Reference:   "FB-20240602-ABCDEF-001",
		Sequence:    1,
		SubmittedAt: time.Now().UTC(),
	}
	_, err := bunDB.NewInsert().Model(reg).Exec(context.Background())
	require.NoError(t, err)

	rec := do(router, http.MethodPut, "/registrations/r1", `{"phone":"555-111-2222","email":"ada@example.org"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data models.Registration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "+15551112222", resp.Data.Phone)
	assert.Equal(t, "ada@example.org", resp.Data.Email)
	assert.Equal(t, "Ada", resp.Data.Name)

	tests := []struct {
		name string
		path string
		body string
		code int
		kind string
	}{
		{name: "no fields", path: "/registrations/r1", body: `{}`, code: http.StatusBadRequest, kind: "invalid_input"},
		{name: "bad phone", path: "/registrations/r1", body: `{"phone":"123"}`, code: http.StatusBadRequest, kind: "invalid_contact"},
		{name: "bad email", path: "/registrations/r1", body: `{"email":"Ada <ada@example.org>"}`, code: http.StatusBadRequest, kind: "invalid_input"},
		{name: "missing", path: "/registrations/nope", body: `{"name":"Grace"}`, code: http.StatusNotFound, kind: "registration_not_found"},
		{name: "malformed", path: "/registrations/r1", body: `{`, code: http.StatusBadRequest, kind: "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.kind)
		})
	}
}
