package main

import (
	"net/http"
	"time"

	"ms-distribution/internal/admin"
	adminapi "ms-distribution/internal/admin/api"
	"ms-distribution/internal/allocation"
	allocationapi "ms-distribution/internal/allocation/api"
	"ms-distribution/internal/auth"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/metrics"
	"ms-distribution/internal/ratelimit"
	"ms-distribution/internal/staff"
	staffapi "ms-distribution/internal/staff/api"
	"ms-distribution/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type routerDeps struct {
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Limiter    ratelimit.Limiter
	TrustXFF   bool
	Verifier   auth.Verifier
	Allocation *allocation.Service
	Staff      *staff.StaffService
	Admin      *admin.AdminService
}

func newRouter(d routerDeps) http.Handler {
	submitHandler := &allocationapi.Handler{Service: d.Allocation, Logger: d.Logger}
	staffHandler := &staffapi.Handler{Service: d.Staff}
	adminHandler := &adminapi.Handler{Service: d.Admin, Logger: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(requestLogger(d.Logger))

	// --- Operational Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.With(ratelimit.Middleware(d.Limiter, ratelimit.ClientIP(d.TrustXFF), d.Logger)).
			Post("/submit/{tokenId}", submitHandler.Submit)

		// --- Protected Routes ---
		r.Route("/staff", func(r chi.Router) {
			r.Use(auth.Middleware(d.Verifier, d.Logger))
			r.Use(auth.RequireRole(d.Logger, auth.RoleStaff, auth.RoleAdmin))

			r.Get("/lookup/{tokenId}", staffHandler.Lookup)
			r.Post("/registrations", staffHandler.RegisterManually)
			r.Post("/registrations/{id}/pickup", staffHandler.ConfirmPickup)
			r.Get("/events/active", staffHandler.ActiveEvents)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware(d.Verifier, d.Logger))
			r.Use(auth.RequireRole(d.Logger, auth.RoleAdmin))

			r.Post("/events", adminHandler.CreateEvent)
			r.Get("/events", adminHandler.ListEvents)
			r.Post("/events/{id}/deactivate", adminHandler.DeactivateEvent)
			r.Patch("/events/{id}/active", adminHandler.SetEventActive)

			r.Post("/tokens", adminHandler.IssueToken)
			r.Get("/tokens/{tokenId}/qr.png", adminHandler.TokenQR)
			r.Post("/tokens/{tokenId}/deactivate", adminHandler.DeactivateToken)

			r.Get("/registrations", adminHandler.ListRegistrations)
			r.Get("/registrations/export", adminHandler.ExportRegistrations)
			r.Put("/registrations/{id}", adminHandler.UpdateRegistration)
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
