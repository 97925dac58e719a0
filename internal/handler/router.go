package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"prode/internal/container"
	"prode/internal/middleware"
	"prode/pkg/errors"
)

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := NewHealthHandler(c)
	roundsHandler := NewRoundsHandler(c.GetRoundService(), log)
	leaderboardHandler := NewLeaderboardHandler(c.Services.API, log)
	sessionHandler := NewSessionHandler(c.GetSessionService(), log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(log))

		r.Get("/leagues/{leagueID}/rounds", roundsHandler.GetRounds)
		r.Route("/leaderboard/{roundSlug}/{tournamentID}", func(r chi.Router) {
			r.Get("/", leaderboardHandler.GetPage)
			r.Get("/legacy", leaderboardHandler.GetLegacy)
		})
		sessionHandler.RegisterRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, errors.NewNotFoundError("Endpoint not found"), log)
	})

	log.Info("Router configured successfully")
	return r
}
