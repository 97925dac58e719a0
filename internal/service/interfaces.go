package service

import (
	"context"

	"prode/internal/domain"
	"prode/internal/guard"
)

// PredictionAPI is the upstream prediction API surface
type PredictionAPI interface {
	// ListRounds fetches the ordered rounds of a league
	ListRounds(ctx context.Context, leagueID int, notGeneralRound bool) ([]domain.Round, error)

	// FetchLeaderboardPage fetches one cursor page of a round leaderboard
	FetchLeaderboardPage(ctx context.Context, roundSlug string, tournamentID int, cursor *string) (*domain.LeaderboardPage, error)

	// FetchLegacyResults fetches one offset page of a round leaderboard
	FetchLegacyResults(ctx context.Context, roundSlug string, tournamentID, offset, limit int) (*domain.LegacyResultsPage, error)

	// SavePredictions persists a round's edits in one batch
	SavePredictions(ctx context.Context, roundSlug string, hasPredictions bool, edits []domain.PredictionEdit) error
}

// RoundService defines the interface for round list operations
type RoundService interface {
	// ListRounds returns a league's rounds, from cache when possible
	ListRounds(ctx context.Context, leagueID int, notGeneralRound bool) ([]domain.Round, error)

	// Overview returns the rounds together with the default round and initial selection
	Overview(ctx context.Context, leagueID int, notGeneralRound bool) (*RoundsOverview, error)

	// InvalidateLeague drops cached round lists after predictions change
	InvalidateLeague(ctx context.Context, leagueID int)
}

// SessionService defines the interface for round screen sessions
type SessionService interface {
	// Start begins sweeping idle sessions
	Start(ctx context.Context) error

	// Stop halts the sweeper
	Stop(ctx context.Context) error

	Create(ctx context.Context, req CreateSessionRequest) (*SessionView, error)
	Get(ctx context.Context, id string) (*SessionView, error)
	Close(ctx context.Context, id string) error

	// SelectRound asks to show another round; the guard may defer the switch
	SelectRound(ctx context.Context, id, roundSlug string) (*SwitchResult, error)

	Edit(ctx context.Context, id string, req EditRequest) (*SessionView, error)
	Save(ctx context.Context, id string) (*SessionView, error)

	// Resolve answers an open switch prompt
	Resolve(ctx context.Context, id string, choice guard.Choice) (*SessionView, error)

	LoadMore(ctx context.Context, id string) (*SessionView, error)
}

// Services aggregates all service interfaces
type Services struct {
	API      PredictionAPI
	Rounds   RoundService
	Sessions SessionService
}
