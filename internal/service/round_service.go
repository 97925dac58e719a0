package service

import (
	"context"
	"fmt"
	"time"

	"prode/internal/domain"
	"prode/internal/rounds"
	"prode/pkg/errors"
	"prode/pkg/logger"
)

// RoundsOverview is a league's rounds plus the round shown by default
type RoundsOverview struct {
	LeagueID       int              `json:"league_id"`
	Rounds         []domain.Round   `json:"rounds"`
	DefaultRoundID int              `json:"default_round_id"`
	Selection      rounds.Selection `json:"selection"`
}

type roundService struct {
	api    PredictionAPI
	cache  *CacheService
	logger *logger.Logger
	now    func() time.Time
}

// NewRoundService creates a round service. cache may be nil, in which case every
// call goes to the upstream.
func NewRoundService(api PredictionAPI, cache *CacheService, logger *logger.Logger) RoundService {
	return &roundService{
		api:    api,
		cache:  cache,
		logger: logger.Named("round_service"),
		now:    time.Now,
	}
}

func (s *roundService) ListRounds(ctx context.Context, leagueID int, notGeneralRound bool) ([]domain.Round, error) {
	if leagueID <= 0 {
		return nil, errors.NewValidationError("league id must be positive", map[string]interface{}{"league_id": leagueID})
	}
	if s.cache == nil {
		return s.api.ListRounds(ctx, leagueID, notGeneralRound)
	}
	return s.cache.GetLeagueRoundsWithCache(ctx, leagueID, notGeneralRound, s.api.ListRounds)
}

func (s *roundService) Overview(ctx context.Context, leagueID int, notGeneralRound bool) (*RoundsOverview, error) {
	list, err := s.ListRounds(ctx, leagueID, notGeneralRound)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.NewNotFoundError(fmt.Sprintf("league %d has no rounds", leagueID))
	}

	defaultID, err := rounds.ComputeDefaultRound(list, s.now())
	if err != nil {
		return nil, err
	}
	def, _ := domain.FindRoundByID(list, defaultID)

	return &RoundsOverview{
		LeagueID:       leagueID,
		Rounds:         list,
		DefaultRoundID: def.ID,
		Selection:      rounds.BuildSelectionState(list, def.Slug),
	}, nil
}

func (s *roundService) InvalidateLeague(ctx context.Context, leagueID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLeagueRounds(ctx, leagueID); err != nil {
		s.logger.WithError(err).WithField("league_id", leagueID).Warn("Stale round lists may be served until TTL")
	}
}
