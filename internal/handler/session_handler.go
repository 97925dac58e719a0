package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"prode/internal/guard"
	"prode/internal/service"
	"prode/pkg/logger"
)

// SessionHandler drives round screen sessions
type SessionHandler struct {
	sessions service.SessionService
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions service.SessionService, logger *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// SelectRoundRequest is the body of PUT /api/sessions/{sessionID}/round
type SelectRoundRequest struct {
	RoundSlug string `json:"round_slug" validate:"required"`
}

// PromptRequest is the body of POST /api/sessions/{sessionID}/prompt
type PromptRequest struct {
	Choice guard.Choice `json:"choice" validate:"oneof=save discard dismiss"`
}

// RegisterRoutes mounts the session routes on r
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Close)
			r.Put("/round", h.SelectRound)
			r.Post("/predictions", h.Edit)
			r.Post("/predictions/save", h.Save)
			r.Post("/prompt", h.Resolve)
			r.Post("/leaderboard/more", h.LoadMore)
		})
	})
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	view, err := h.sessions.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, view, h.logger)
}

// Get handles GET /api/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, view, h.logger)
}

// Close handles DELETE /api/sessions/{sessionID}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectRound handles PUT /api/sessions/{sessionID}/round
func (h *SessionHandler) SelectRound(w http.ResponseWriter, r *http.Request) {
	var req SelectRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	result, err := h.sessions.SelectRound(r.Context(), chi.URLParam(r, "sessionID"), req.RoundSlug)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result, h.logger)
}

// Edit handles POST /api/sessions/{sessionID}/predictions
func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req service.EditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	view, err := h.sessions.Edit(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, view, h.logger)
}

// Save handles POST /api/sessions/{sessionID}/predictions/save
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Save(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, view, h.logger)
}

// Resolve handles POST /api/sessions/{sessionID}/prompt
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	view, err := h.sessions.Resolve(r.Context(), chi.URLParam(r, "sessionID"), req.Choice)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, view, h.logger)
}

// LoadMore handles POST /api/sessions/{sessionID}/leaderboard/more
func (h *SessionHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.LoadMore(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, view, h.logger)
}
