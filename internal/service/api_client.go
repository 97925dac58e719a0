package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"prode/internal/config"
	"prode/internal/domain"
	"prode/pkg/auth"
	"prode/pkg/errors"
	"prode/pkg/logger"
	"prode/pkg/validator"
)

// maxErrorBody caps how much of an upstream error body ends up in errors and logs
const maxErrorBody = 512

// APIClient handles all interactions with the remote prediction API
type APIClient struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	limiter   *rate.Limiter
	logger    *logger.Logger
}

// NewAPIClient creates a new prediction API client
func NewAPIClient(cfg *config.Config, logger *logger.Logger) *APIClient {
	limit := rate.Inf
	if cfg.APIRateLimit > 0 {
		limit = rate.Limit(cfg.APIRateLimit)
	}
	burst := cfg.APIRateBurst
	if burst < 1 {
		burst = 1
	}

	return &APIClient{
		baseURL:   cfg.APIBaseURL,
		timeout:   cfg.APITimeout,
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger.Named("api_client"),
	}
}

var _ PredictionAPI = (*APIClient)(nil)

type predictionWire struct {
	Predictions []domain.PredictionEdit `json:"predictions"`
}

// ListRounds fetches the ordered rounds of a league
func (c *APIClient) ListRounds(ctx context.Context, leagueID int, notGeneralRound bool) ([]domain.Round, error) {
	path := fmt.Sprintf("/leagues/rounds/league/%d/", leagueID)
	query := url.Values{"not_general_round": {strconv.FormatBool(notGeneralRound)}}

	var rounds []domain.Round
	if err := c.do(ctx, http.MethodGet, path, query, nil, &rounds); err != nil {
		return nil, err
	}
	if err := validator.Slice(rounds); err != nil {
		return nil, c.invalidPayload("rounds", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"league_id": leagueID,
		"rounds":    len(rounds),
	}).Debug("Fetched league rounds")
	return rounds, nil
}

// FetchLeaderboardPage fetches one cursor page of a round leaderboard.
// tournamentID 0 selects the general leaderboard.
func (c *APIClient) FetchLeaderboardPage(ctx context.Context, roundSlug string, tournamentID int, cursor *string) (*domain.LeaderboardPage, error) {
	query := url.Values{}
	if cursor != nil {
		query.Set("cursor", *cursor)
	}

	var page domain.LeaderboardPage
	if err := c.do(ctx, http.MethodGet, resultsPath(roundSlug, tournamentID), query, nil, &page); err != nil {
		return nil, err
	}
	if err := validator.Struct(page); err != nil {
		return nil, c.invalidPayload("leaderboard page", err)
	}
	page.Next = cursorValue(page.Next)

	c.logger.WithFields(map[string]interface{}{
		"round_slug":    roundSlug,
		"tournament_id": tournamentID,
		"entries":       len(page.Entries),
		"has_more":      page.Next != nil,
	}).Debug("Fetched leaderboard page")
	return &page, nil
}

// FetchLegacyResults fetches the offset-paginated results of a round
func (c *APIClient) FetchLegacyResults(ctx context.Context, roundSlug string, tournamentID, offset, limit int) (*domain.LegacyResultsPage, error) {
	if offset < 0 || limit < 1 {
		return nil, errors.NewValidationError("offset must be >= 0 and limit >= 1", map[string]interface{}{
			"offset": offset,
			"limit":  limit,
		})
	}
	query := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}

	var page domain.LegacyResultsPage
	if err := c.do(ctx, http.MethodGet, resultsPath(roundSlug, tournamentID), query, nil, &page); err != nil {
		return nil, err
	}
	if err := validator.Struct(page); err != nil {
		return nil, c.invalidPayload("legacy results", err)
	}
	return &page, nil
}

// SavePredictions persists a round's edits in one batch. The first save of a
// round creates predictions; later saves update them.
func (c *APIClient) SavePredictions(ctx context.Context, roundSlug string, hasPredictions bool, edits []domain.PredictionEdit) error {
	batch := domain.PredictionBatch{Predictions: edits}
	if err := validator.Struct(batch); err != nil {
		return errors.NewValidationError(validator.FormatValidationError(err), validator.Details(err))
	}

	method := http.MethodPost
	if hasPredictions {
		method = http.MethodPatch
	}
	path := fmt.Sprintf("/bets/round/%s/predictions/", url.PathEscape(roundSlug))
	if err := c.do(ctx, method, path, nil, predictionWire{Predictions: edits}, nil); err != nil {
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"round_slug": roundSlug,
		"method":     method,
		"edits":      len(edits),
	}).Info("Saved predictions")
	return nil
}

func resultsPath(roundSlug string, tournamentID int) string {
	return fmt.Sprintf("/bets/bet_results/%s/%d/", url.PathEscape(roundSlug), tournamentID)
}

// cursorValue reduces a DRF-style absolute "next" URL to its cursor parameter;
// anything else is already opaque and passed through.
func cursorValue(next *string) *string {
	if next == nil || *next == "" {
		return nil
	}
	u, err := url.Parse(*next)
	if err != nil || !u.IsAbs() {
		return next
	}
	if c := u.Query().Get("cursor"); c != "" {
		return &c
	}
	return next
}

// truncateBody caps body at maxErrorBody bytes without splitting a rune
func truncateBody(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

func (c *APIClient) invalidPayload(what string, err error) error {
	c.logger.WithError(err).WithField("payload", what).Error("Upstream payload failed validation")
	appErr := errors.NewExternalError(fmt.Sprintf("invalid %s payload from prediction API", what), err)
	appErr.Details = validator.Details(err)
	return appErr
}

// do performs one request with the caller's bearer token. No retries: the
// caller owns retry policy.
func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		return errors.NewAuthenticationError("bearer token is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewRateLimitError("request pacing aborted: " + err.Error())
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to marshal request body", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.NewInternalError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("Prediction API call failed")
		return errors.NewExternalError("failed to call prediction API", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewExternalError("failed to read response body", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Prediction API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.FromStatus(resp.StatusCode, truncateBody(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"path":        path,
			"status_code": resp.StatusCode,
		}).WithError(err).Error("Failed to parse prediction API response")
		return errors.NewExternalError("failed to parse prediction API response", err)
	}
	return nil
}
