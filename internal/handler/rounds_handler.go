package handler

import (
	"net/http"

	"prode/internal/service"
	"prode/pkg/logger"
)

// RoundsHandler serves league round lists
type RoundsHandler struct {
	rounds service.RoundService
	logger *logger.Logger
}

// NewRoundsHandler creates a new rounds handler
func NewRoundsHandler(rounds service.RoundService, logger *logger.Logger) *RoundsHandler {
	return &RoundsHandler{rounds: rounds, logger: logger}
}

// GetRounds handles GET /api/leagues/{leagueID}/rounds
func (h *RoundsHandler) GetRounds(w http.ResponseWriter, r *http.Request) {
	leagueID, err := intParam(r, "leagueID")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	notGeneral, err := boolQuery(r, "not_general_round")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	overview, err := h.rounds.Overview(r.Context(), leagueID, notGeneral)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, overview, h.logger)
}
