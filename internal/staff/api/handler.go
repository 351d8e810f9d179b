package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-distribution/internal/allocation"
	allocationapi "ms-distribution/internal/allocation/api"
	"ms-distribution/internal/models"
	"ms-distribution/internal/staff"
	"ms-distribution/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *staff.StaffService
}

type manualRegistrationRequest struct {
	EventID string `json:"event_id"`
	models.RegistrationRequest
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenId")
	if !utils.IsID(tokenID) {
		allocationapi.WriteError(w, allocation.ErrTokenNotFound)
		return
	}

	lookup, err := h.Service.Lookup(r.Context(), tokenID)
	if err != nil {
		allocationapi.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", lookup))
}

func (h *Handler) RegisterManually(w http.ResponseWriter, r *http.Request) {
	var req manualRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		allocationapi.WriteError(w, &allocation.Rejection{Kind: allocation.KindInvalidInput, Message: "invalid request body"})
		return
	}
	if !utils.IsID(req.EventID) {
		allocationapi.WriteError(w, &allocation.Rejection{Kind: allocation.KindInvalidInput, Message: "event_id is required"})
		return
	}

	receipt, err := h.Service.RegisterManually(r.Context(), req.EventID, req.RegistrationRequest)
	if err != nil {
		allocationapi.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Registration confirmed", receipt))
}

func (h *Handler) ActiveEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.ActiveEvents(r.Context())
	if err != nil {
		allocationapi.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", events))
}

func (h *Handler) ConfirmPickup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reg, err := h.Service.ConfirmPickup(r.Context(), id)
	if errors.Is(err, staff.ErrRegistrationNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("registration_not_found", err.Error(), nil))
		return
	}
	if err != nil {
		allocationapi.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pickup confirmed", reg))
}
