package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freeeve/measured-violence/internal/auth"
	"github.com/freeeve/measured-violence/internal/service"
)

// ActionHandler handles action submission and state endpoints.
type ActionHandler struct {
	actionSvc *service.ActionService
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(actionSvc *service.ActionService) *ActionHandler {
	return &ActionHandler{actionSvc: actionSvc}
}

func actionStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrMatchNotActive), errors.Is(err, service.ErrNoCurrentTurn):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotInMatch):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// SubmitAction handles POST /api/v1/matches/{id}/actions
func (h *ActionHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var payload json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.actionSvc.SubmitAction(r.Context(), matchID, userID, payload)
	if err != nil {
		writeError(w, actionStatus(err), err.Error())
		return
	}
	if !res.Valid || !res.Success {
		writeRuleViolation(w, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidateAction handles POST /api/v1/matches/{id}/actions/validate
func (h *ActionHandler) ValidateAction(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var payload json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.actionSvc.ValidateAction(r.Context(), matchID, userID, payload)
	if err != nil {
		writeError(w, actionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// AvailableActions handles GET /api/v1/matches/{id}/actions/available
func (h *ActionHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	descs, err := h.actionSvc.AvailableActions(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, actionStatus(err), err.Error())
		return
	}
	if descs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, descs)
}

// GetState handles GET /api/v1/matches/{id}/state
func (h *ActionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	state, err := h.actionSvc.GetState(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, actionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(state))
}
