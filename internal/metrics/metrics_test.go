package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-distribution/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAllocationCounters(t *testing.T) {
	m := metrics.New()
	m.AllocationCompleted("committed", 10*time.Millisecond)
	m.AllocationCompleted("quota_exceeded", time.Millisecond)
	m.AllocationCompleted("quota_exceeded", time.Millisecond)
	m.NotificationFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Allocations.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Allocations.WithLabelValues("quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/api/submit/{tokenId}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/submit/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/submit/def", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/submit/{tokenId}", "201")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "distribution_http_requests_total")
}
