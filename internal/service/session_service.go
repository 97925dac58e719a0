package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"prode/internal/domain"
	"prode/internal/guard"
	"prode/internal/leaderboard"
	"prode/internal/rounds"
	"prode/pkg/errors"
	"prode/pkg/logger"
	"prode/pkg/validator"
)

// CreateSessionRequest opens a round screen for a league
type CreateSessionRequest struct {
	LeagueID        int  `json:"league_id" validate:"gt=0"`
	TournamentID    int  `json:"tournament_id" validate:"gte=0"`
	NotGeneralRound bool `json:"not_general_round"`
}

// EditRequest is one tap on a score stepper
type EditRequest struct {
	MatchID int         `json:"match_id" validate:"gt=0"`
	Side    domain.Side `json:"side" validate:"oneof=home away"`
	Delta   int         `json:"delta" validate:"oneof=-1 1"`
}

// GuardView is the unsaved-changes state of a session
type GuardView struct {
	State         guard.State             `json:"state"`
	RoundSlug     string                  `json:"round_slug"`
	PendingSwitch string                  `json:"pending_switch,omitempty"`
	Edits         []domain.PredictionEdit `json:"edits"`
}

// SessionView is a snapshot of one round screen
type SessionView struct {
	ID             string                 `json:"id"`
	LeagueID       int                    `json:"league_id"`
	TournamentID   int                    `json:"tournament_id"`
	Rounds         []domain.Round         `json:"rounds"`
	DefaultRoundID int                    `json:"default_round_id"`
	Selection      rounds.Selection       `json:"selection"`
	ActiveRound    string                 `json:"active_round"`
	Guard          GuardView              `json:"guard"`
	Leaderboard    domain.LeaderboardView `json:"leaderboard"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// SwitchResult reports what a round selection did
type SwitchResult struct {
	Decision guard.Decision `json:"decision"`
	Session  *SessionView   `json:"session"`
}

// roundSession is the state of one mounted round screen. mu serializes
// selection and guard changes and may be held across upstream calls; the
// pager synchronizes itself and lastSeen is read without mu.
type roundSession struct {
	id              string
	owner           string
	leagueID        int
	tournamentID    int
	notGeneralRound bool
	pager           *leaderboard.Pager
	lastSeen        atomic.Int64 // unix nanoseconds

	mu             sync.Mutex
	rounds         []domain.Round
	defaultRoundID int
	selection      rounds.Selection
	guard          *guard.Guard
}

type sessionService struct {
	api         PredictionAPI
	rounds      RoundService
	policy      guard.DismissPolicy
	idleTimeout time.Duration
	logger      *logger.Logger
	now         func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*roundSession
	ticker    *time.Ticker
	stopSweep chan struct{}
	isRunning bool
}

// NewSessionService creates a new session service
func NewSessionService(api PredictionAPI, roundSvc RoundService, policy guard.DismissPolicy, idleTimeout time.Duration, logger *logger.Logger) SessionService {
	return &sessionService{
		api:         api,
		rounds:      roundSvc,
		policy:      policy,
		idleTimeout: idleTimeout,
		logger:      logger.Named("session_service"),
		now:         time.Now,
		sessions:    make(map[string]*roundSession),
	}
}

// Start begins the idle session sweeper
func (s *sessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning || s.idleTimeout <= 0 {
		return nil
	}

	interval := s.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	s.ticker = time.NewTicker(interval)
	s.stopSweep = make(chan struct{})
	go s.sweepRoutine(ctx, s.ticker, s.stopSweep)

	s.isRunning = true
	s.logger.WithField("idle_timeout", s.idleTimeout.String()).Info("Session sweeper started")
	return nil
}

// Stop halts the sweeper. Open sessions are kept.
func (s *sessionService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.ticker.Stop()
	close(s.stopSweep)
	s.isRunning = false
	s.logger.Info("Session sweeper stopped")
	return nil
}

func (s *sessionService) sweepRoutine(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops sessions idle longer than the timeout
func (s *sessionService) sweep() int {
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff.UnixNano() {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"removed": removed,
			"open":    len(s.sessions),
		}).Debug("Swept idle sessions")
	}
	return removed
}

// Create opens a session on the league's default round
func (s *sessionService) Create(ctx context.Context, req CreateSessionRequest) (*SessionView, error) {
	if err := validator.Struct(req); err != nil {
		return nil, errors.NewValidationError(validator.FormatValidationError(err), validator.Details(err))
	}

	overview, err := s.rounds.Overview(ctx, req.LeagueID, req.NotGeneralRound)
	if err != nil {
		return nil, err
	}
	def, _ := domain.FindRoundByID(overview.Rounds, overview.DefaultRoundID)

	sess := &roundSession{
		id:              uuid.NewString(),
		owner:           userScope(ctx),
		leagueID:        req.LeagueID,
		tournamentID:    req.TournamentID,
		notGeneralRound: req.NotGeneralRound,
		pager:           leaderboard.NewPager(s.api, s.logger),
		rounds:          overview.Rounds,
		defaultRoundID:  overview.DefaultRoundID,
		selection:       overview.Selection,
		guard:           guard.New(s.api, s.policy, def.Slug, def.HasPredictions),
	}
	sess.lastSeen.Store(s.now().UnixNano())

	if _, err := sess.pager.ResetAndFetchFirstPage(ctx, def.Slug, req.TournamentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"session_id": sess.id,
		"league_id":  req.LeagueID,
		"round_slug": def.Slug,
	}).Info("Session created")

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

func (s *sessionService) Close(ctx context.Context, id string) error {
	if _, err := s.lookup(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.logger.WithField("session_id", id).Debug("Session closed")
	return nil
}

func (s *sessionService) SelectRound(ctx context.Context, id, roundSlug string) (*SwitchResult, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.selection.Has(roundSlug) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("round %q is not part of this league", roundSlug))
	}

	decision := sess.guard.RequestSwitch(roundSlug)
	if decision == guard.SwitchNow {
		if err := s.activateLocked(ctx, sess, roundSlug); err != nil {
			return nil, err
		}
	}
	return &SwitchResult{Decision: decision, Session: s.viewLocked(sess)}, nil
}

func (s *sessionService) Edit(ctx context.Context, id string, req EditRequest) (*SessionView, error) {
	if err := validator.Struct(req); err != nil {
		return nil, errors.NewValidationError(validator.FormatValidationError(err), validator.Details(err))
	}
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, err := sess.guard.Adjust(req.MatchID, req.Side, req.Delta); err != nil {
		return nil, err
	}
	return s.viewLocked(sess), nil
}

func (s *sessionService) Save(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	slug := sess.guard.RoundSlug()
	hadEdits := len(sess.guard.Edits()) > 0
	if err := sess.guard.Save(ctx); err != nil {
		return nil, err
	}
	if hadEdits {
		s.markSavedLocked(ctx, sess, slug)
	}
	return s.viewLocked(sess), nil
}

func (s *sessionService) Resolve(ctx context.Context, id string, choice guard.Choice) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	slug := sess.guard.RoundSlug()
	hadEdits := len(sess.guard.Edits()) > 0
	target, err := sess.guard.Resolve(ctx, choice)
	if err != nil {
		return nil, err
	}
	if choice == guard.ChoiceSave && hadEdits {
		s.markSavedLocked(ctx, sess, slug)
	}
	if target != "" {
		if err := s.activateLocked(ctx, sess, target); err != nil {
			return nil, err
		}
	}
	return s.viewLocked(sess), nil
}

// LoadMore extends the leaderboard. The session lock is not held across the
// fetch so concurrent calls can share one request.
func (s *sessionService) LoadMore(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := sess.pager.LoadMore(ctx); err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

// lookup finds a session owned by the caller and marks it as used
func (s *sessionService) lookup(ctx context.Context, id string) (*roundSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.owner != userScope(ctx) {
		return nil, errors.NewNotFoundError("session not found")
	}

	sess.lastSeen.Store(s.now().UnixNano())
	return sess, nil
}

// activateLocked shows roundSlug: the selection moves, the guard starts over
// and the leaderboard reloads from its first page.
func (s *sessionService) activateLocked(ctx context.Context, sess *roundSession, roundSlug string) error {
	round, _ := domain.FindRound(sess.rounds, roundSlug)
	sess.selection = rounds.SetActiveRound(sess.selection, roundSlug)
	sess.guard.Reset(roundSlug, round.HasPredictions, nil)

	if _, err := sess.pager.ResetAndFetchFirstPage(ctx, roundSlug, sess.tournamentID); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"session_id": sess.id,
			"round_slug": roundSlug,
		}).Warn("Round switched but leaderboard failed to load")
		return err
	}
	return nil
}

// markSavedLocked records that a round now has saved predictions
func (s *sessionService) markSavedLocked(ctx context.Context, sess *roundSession, roundSlug string) {
	updated := make([]domain.Round, len(sess.rounds))
	copy(updated, sess.rounds)
	for i := range updated {
		if updated[i].Slug == roundSlug {
			updated[i].HasPredictions = true
		}
	}
	sess.rounds = updated
	s.rounds.InvalidateLeague(ctx, sess.leagueID)
}

func (s *sessionService) viewLocked(sess *roundSession) *SessionView {
	active, _ := sess.selection.Active()
	sel := make(rounds.Selection, len(sess.selection))
	for k, v := range sess.selection {
		sel[k] = v
	}
	return &SessionView{
		ID:             sess.id,
		LeagueID:       sess.leagueID,
		TournamentID:   sess.tournamentID,
		Rounds:         sess.rounds,
		DefaultRoundID: sess.defaultRoundID,
		Selection:      sel,
		ActiveRound:    active,
		Guard: GuardView{
			State:         sess.guard.State(),
			RoundSlug:     sess.guard.RoundSlug(),
			PendingSwitch: sess.guard.PendingSwitch(),
			Edits:         sess.guard.Edits(),
		},
		Leaderboard: sess.pager.View(),
		UpdatedAt:   time.Unix(0, sess.lastSeen.Load()).UTC(),
	}
}
