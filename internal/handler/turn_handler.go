package handler

import (
	"net/http"

	"github.com/freeeve/measured-violence/internal/repository"
)

// TurnHandler handles turn history endpoints.
type TurnHandler struct {
	turnRepo repository.TurnRepository
}

// NewTurnHandler creates a TurnHandler.
func NewTurnHandler(turnRepo repository.TurnRepository) *TurnHandler {
	return &TurnHandler{turnRepo: turnRepo}
}

// ListTurns handles GET /api/v1/matches/{id}/turns
func (h *TurnHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	turns, err := h.turnRepo.ListTurns(r.Context(), matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// CurrentTurn handles GET /api/v1/matches/{id}/turns/current
func (h *TurnHandler) CurrentTurn(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	turn, err := h.turnRepo.CurrentTurn(r.Context(), matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turn == nil {
		writeError(w, http.StatusNotFound, "no unresolved turn")
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// TurnActions handles GET /api/v1/matches/{id}/turns/{turnId}/actions
func (h *TurnHandler) TurnActions(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnId")
	recs, err := h.turnRepo.ActionsByTurn(r.Context(), turnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
