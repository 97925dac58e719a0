package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"prode/internal/service"
	"prode/pkg/logger"
)

// defaultLegacyLimit is the page size of the offset endpoint when none is given
const defaultLegacyLimit = 20

// LeaderboardHandler proxies single leaderboard pages
type LeaderboardHandler struct {
	api    service.PredictionAPI
	logger *logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(api service.PredictionAPI, logger *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{api: api, logger: logger}
}

// GetPage handles GET /api/leaderboard/{roundSlug}/{tournamentID}?cursor=
func (h *LeaderboardHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := intParam(r, "tournamentID")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	page, err := h.api.FetchLeaderboardPage(r.Context(), chi.URLParam(r, "roundSlug"), tournamentID, cursor)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, page, h.logger)
}

// GetLegacy handles GET /api/leaderboard/{roundSlug}/{tournamentID}/legacy?offset=&limit=
func (h *LeaderboardHandler) GetLegacy(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := intParam(r, "tournamentID")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	limit, err := intQuery(r, "limit", defaultLegacyLimit)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	page, err := h.api.FetchLegacyResults(r.Context(), chi.URLParam(r, "roundSlug"), tournamentID, offset, limit)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, page, h.logger)
}
