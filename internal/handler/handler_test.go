package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prode/internal/config"
	"prode/internal/container"
	"prode/pkg/logger"
)

// upstream fakes the prediction API for one league with three rounds
type upstream struct {
	mu    sync.Mutex
	saves []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/leagues/rounds/league/7/":
		w.Write([]byte(`[
			{"id":1,"name":"Fecha 1","slug":"fecha-1","number":1,"state":2,"has_predictions":true},
			{"id":2,"name":"Fecha 2","slug":"fecha-2","number":2,"state":1},
			{"id":3,"name":"Fecha 3","slug":"fecha-3","number":3,"state":0}
		]`))
	case r.URL.Path == "/leagues/rounds/league/8/":
		w.Write([]byte(`[]`))
	case r.URL.Path == "/bets/bet_results/fecha-2/0/" || r.URL.Path == "/bets/bet_results/fecha-3/0/":
		if r.URL.Query().Get("offset") != "" {
			w.Write([]byte(`{"count":1,"next":null,"previous":null,"results":[{"position":1,"username":"ana","points":9,"exact_predictions":1}]}`))
			return
		}
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"results":[{"position":1,"username":"ana","points":9,"exact_predictions":1}],"next":"c2"}`))
			return
		}
		w.Write([]byte(`{"results":[{"position":2,"username":"beto","points":3,"exact_predictions":0}],"next":null}`))
	case r.URL.Path == "/bets/round/fecha-2/predictions/":
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.saves = append(u.saves, r.Method+" "+string(bytes.TrimSpace(body)))
		u.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
	}
}

func newTestRouter(t *testing.T) (http.Handler, *upstream) {
	t.Helper()
	up := &upstream{}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Environment:        "test",
		APIBaseURL:         server.URL,
		APITimeout:         5 * time.Second,
		APIRateBurst:       1,
		SessionIdleTimeout: time.Minute,
	}
	c, err := container.New(cfg, logger.Nop())
	require.NoError(t, err)
	return NewRouter(c), up
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

type sessionBody struct {
	ID          string          `json:"id"`
	ActiveRound string          `json:"active_round"`
	Selection   map[string]bool `json:"selection"`
	Guard       struct {
		State         string `json:"state"`
		PendingSwitch string `json:"pending_switch"`
	} `json:"guard"`
	Leaderboard struct {
		RoundSlug string `json:"round_slug"`
		Entries   []struct {
			Position int    `json:"position"`
			Username string `json:"username"`
		} `json:"entries"`
		HasMore bool `json:"has_more"`
	} `json:"leaderboard"`
}

func decodeSession(t *testing.T, raw json.RawMessage) sessionBody {
	t.Helper()
	var s sessionBody
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])
}

func TestAPIRequiresBearer(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leagues/7/rounds", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRounds(t *testing.T) {
	h, _ := newTestRouter(t)

	status, env := do(t, h, http.MethodGet, "/api/leagues/7/rounds", "")
	require.Equal(t, http.StatusOK, status)

	var overview struct {
		DefaultRoundID int             `json:"default_round_id"`
		Selection      map[string]bool `json:"selection"`
		Rounds         []struct {
			Slug  string `json:"slug"`
			State int    `json:"state"`
		} `json:"rounds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, 2, overview.DefaultRoundID)
	assert.Equal(t, map[string]bool{"fecha-1": false, "fecha-2": true, "fecha-3": false}, overview.Selection)
	assert.Len(t, overview.Rounds, 3)

	status, env = do(t, h, http.MethodGet, "/api/leagues/8/rounds", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Type)
	assert.NotEmpty(t, env.Error.RequestID)

	status, _ = do(t, h, http.MethodGet, "/api/leagues/abc/rounds", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLeaderboardPages(t *testing.T) {
	h, _ := newTestRouter(t)

	status, env := do(t, h, http.MethodGet, "/api/leaderboard/fecha-2/0", "")
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Results []struct{ Position int } `json:"results"`
		Next    *string                  `json:"next"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.NotNil(t, page.Next)
	assert.Equal(t, "c2", *page.Next)

	status, env = do(t, h, http.MethodGet, "/api/leaderboard/fecha-2/0?cursor=c2", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Nil(t, page.Next)
	assert.Equal(t, 2, page.Results[0].Position)

	status, env = do(t, h, http.MethodGet, "/api/leaderboard/fecha-2/0/legacy?offset=0&limit=10", "")
	require.Equal(t, http.StatusOK, status)
	var legacy struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &legacy))
	assert.Equal(t, 1, legacy.Count)

	status, _ = do(t, h, http.MethodGet, "/api/leaderboard/fecha-2/0/legacy?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = do(t, h, http.MethodGet, "/api/leaderboard/missing/0", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestSessionFlow(t *testing.T) {
	h, up := newTestRouter(t)

	status, env := do(t, h, http.MethodPost, "/api/sessions", `{"league_id":7}`)
	require.Equal(t, http.StatusCreated, status)
	sess := decodeSession(t, env.Data)
	assert.Equal(t, "fecha-2", sess.ActiveRound)
	assert.Equal(t, "saved", sess.Guard.State)
	require.Len(t, sess.Leaderboard.Entries, 1)
	base := "/api/sessions/" + sess.ID

	status, env = do(t, h, http.MethodPost, base+"/leaderboard/more", "")
	require.Equal(t, http.StatusOK, status)
	sess = decodeSession(t, env.Data)
	require.Len(t, sess.Leaderboard.Entries, 2)
	assert.Equal(t, "beto", sess.Leaderboard.Entries[1].Username)
	assert.False(t, sess.Leaderboard.HasMore)

	status, env = do(t, h, http.MethodPost, base+"/predictions", `{"match_id":11,"side":"home","delta":1}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dirty", decodeSession(t, env.Data).Guard.State)

	status, env = do(t, h, http.MethodPut, base+"/round", `{"round_slug":"fecha-3"}`)
	require.Equal(t, http.StatusOK, status)
	var switched struct {
		Decision string          `json:"decision"`
		Session  json.RawMessage `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &switched))
	assert.Equal(t, "deferred", switched.Decision)
	sess = decodeSession(t, switched.Session)
	assert.Equal(t, "fecha-2", sess.ActiveRound)
	assert.Equal(t, "prompting_switch", sess.Guard.State)
	assert.Equal(t, "fecha-3", sess.Guard.PendingSwitch)

	status, env = do(t, h, http.MethodPost, base+"/prompt", `{"choice":"save"}`)
	require.Equal(t, http.StatusOK, status)
	sess = decodeSession(t, env.Data)
	assert.Equal(t, "fecha-3", sess.ActiveRound)
	assert.Equal(t, "saved", sess.Guard.State)
	assert.Equal(t, "fecha-3", sess.Leaderboard.RoundSlug)
	assert.Equal(t, []string{`POST {"predictions":[{"match_id":11,"home_score":1,"away_score":0}]}`}, up.saves)

	status, env = do(t, h, http.MethodPost, base+"/prompt", `{"choice":"save"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", env.Error.Type)

	status, _ = do(t, h, http.MethodPut, base+"/round", `{"round_slug":"fecha-9"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, h, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSessionValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing league", http.MethodPost, "/api/sessions", `{}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/sessions", `{"league_id":7,"foo":1}`, http.StatusBadRequest},
		{"league without rounds", http.MethodPost, "/api/sessions", `{"league_id":8}`, http.StatusNotFound},
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
		{"bad choice", http.MethodPost, "/api/sessions/nope/prompt", `{"choice":"maybe"}`, http.StatusBadRequest},
		{"unknown endpoint", http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
		})
	}
}
