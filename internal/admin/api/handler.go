package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-distribution/internal/admin"
	"ms-distribution/internal/allocation"
	allocationapi "ms-distribution/internal/allocation/api"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *admin.AdminService
	Logger  *logger.Logger
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req admin.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", "invalid request body", nil))
		return
	}

	event, err := h.Service.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", event))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", events))
}

func (h *Handler) DeactivateEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeactivateEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event deactivated", nil))
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handler) SetEventActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", "is_active must be a boolean", nil))
		return
	}

	event, err := h.Service.SetEventActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	msg := "Event deactivated"
	if event.IsActive {
		msg = "Event activated"
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(msg, event))
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req admin.IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", "invalid request body", nil))
		return
	}
	if !utils.IsID(req.EventID) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", "event_id is required", nil))
		return
	}

	issued, err := h.Service.IssueToken(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Admission token issued", issued))
}

func (h *Handler) TokenQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.TokenQR(r.Context(), chi.URLParam(r, "tokenId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) DeactivateToken(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeactivateToken(r.Context(), chi.URLParam(r, "tokenId")); err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Admission token deactivated", nil))
}

func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", err.Error(), nil))
		return
	}

	page, err := h.Service.ListRegistrations(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", page))
}

func (h *Handler) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	var req admin.UpdateRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", "invalid request body", nil))
		return
	}

	reg, err := h.Service.UpdateRegistration(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration updated", reg))
}

func (h *Handler) ExportRegistrations(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", err.Error(), nil))
		return
	}

	filename := fmt.Sprintf("registrations-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := h.Service.ExportCSV(r.Context(), q, w); err != nil {
		// Headers are already sent; the truncated file is all we can do.
		h.Logger.Error("ADMIN", fmt.Sprintf("CSV export failed: %v", err))
	}
}

func parseListQuery(r *http.Request) (admin.ListQuery, error) {
	values := r.URL.Query()
	q := admin.ListQuery{EventID: values.Get("event_id")}

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("page must be a number")
		}
		q.Page = n
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("limit must be a number")
		}
		q.Limit = n
	}
	if v := values.Get("date"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, fmt.Errorf("date must be YYYY-MM-DD")
		}
		q.Day = day
	}
	return q, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *admin.ValidationError
	var rej *allocation.Rejection
	switch {
	case errors.As(err, &rej) && rej.Kind != allocation.KindPersistenceFailure:
		allocationapi.WriteError(w, rej)
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid_input", verr.Error(), map[string]string{"field": verr.Field}))
	case errors.Is(err, admin.ErrEventNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("event_not_found", err.Error(), nil))
	case errors.Is(err, admin.ErrTokenNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("token_not_found", err.Error(), nil))
	case errors.Is(err, admin.ErrRegistrationNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("registration_not_found", err.Error(), nil))
	default:
		h.Logger.Error("ADMIN", err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal_error", "request failed", nil))
	}
}
