package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	Allocations          *prometheus.CounterVec
	AllocationDuration   prometheus.Histogram
	NotificationFailures prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
}

// New creates the metrics on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distribution_allocations_total",
			Help: "Registration attempts by outcome (committed or rejection kind)",
		}, []string{"outcome"}),
		AllocationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "distribution_allocation_duration_seconds",
			Help:    "Time spent admitting a registration, including lock waits",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "distribution_notification_dispatch_failures_total",
			Help: "Confirmations that could not be handed to the notification channel",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distribution_notifications_sent_total",
			Help: "SMS deliveries attempted by the notification worker",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distribution_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		}, []string{"method", "route", "status"}),
	}
}

// AllocationCompleted records one finished registration attempt.
func (m *Metrics) AllocationCompleted(outcome string, elapsed time.Duration) {
	m.Allocations.WithLabelValues(outcome).Inc()
	m.AllocationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) NotificationFailed() {
	m.NotificationFailures.Inc()
}

func (m *Metrics) NotificationSent(ok bool) {
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.NotificationsSent.WithLabelValues(result).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern so ids do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}
