package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-distribution/internal/allocation"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
	"ms-distribution/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 16 << 10

type Registrar interface {
	Register(ctx context.Context, tokenID string, req models.RegistrationRequest) (models.Receipt, error)
}

type Handler struct {
	Service Registrar
	Logger  *logger.Logger
}

// Submit handles POST /api/submit/{tokenId}.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenId")
	if !utils.IsID(tokenID) {
		WriteError(w, allocation.ErrTokenNotFound)
		return
	}

	var req models.RegistrationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, &allocation.Rejection{Kind: allocation.KindInvalidInput, Message: "invalid request body"})
		return
	}

	receipt, err := h.Service.Register(r.Context(), tokenID, req)
	if err != nil {
		if allocation.KindOf(err) == allocation.KindPersistenceFailure {
			h.Logger.Error("API", fmt.Sprintf("Submit %s failed: %v", tokenID, err))
		}
		WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, receipt)
}
