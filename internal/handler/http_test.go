package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/deadline"
	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/memory"
	"github.com/footballistika/predictor/internal/scoring"
	"github.com/footballistika/predictor/internal/service"
)

var (
	kickoff = time.Date(2024, 6, 14, 19, 0, 0, 0, time.UTC)
	// 13:00 in Kyiv
	morning = time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newServer(t *testing.T, checks map[string]ReadinessCheck) http.Handler {
	t.Helper()
	gate, err := deadline.New(deadline.DefaultCutoff, deadline.DefaultTimeZone)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository(domain.DefaultPointsRule())
	svc := service.New(repo, gate, scoring.SameOutcome, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}, logger,
		service.WithClock(func() time.Time { return morning }))

	h := NewHandler(svc, logger, checks)
	h.now = func() time.Time { return morning }
	return h.Router()
}

func call(t *testing.T, srv http.Handler, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestHealthAndReady(t *testing.T) {
	srv := newServer(t, map[string]ReadinessCheck{"postgres": func(context.Context) error { return nil }})
	code, env := call(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = call(t, srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	down := newServer(t, map[string]ReadinessCheck{"redis": func(context.Context) error { return errors.New("dial tcp") }})
	code, env = call(t, down, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "redis is not ready", env.Error)
}

func TestPredictionFlow(t *testing.T) {
	srv := newServer(t, nil)

	code, _ := call(t, srv, http.MethodPost, "/api/v1/users", EnsureUserRequest{ID: 10, Username: "ann"})
	assert.Equal(t, http.StatusCreated, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/users", EnsureUserRequest{ID: 10, Username: "ann"})
	assert.Equal(t, http.StatusOK, code)

	code, env := call(t, srv, http.MethodPost, "/api/v1/matches", CreateMatchRequest{Team1: "Germany", Team2: "Scotland", StartTime: kickoff})
	require.Equal(t, http.StatusCreated, code)
	var m domain.Match
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, domain.MatchStatusScheduled, m.Status)

	sub := domain.PredictionSubmission{UserID: 10, MatchID: m.ID, Score1: 5, Score2: 1}
	code, _ = call(t, srv, http.MethodPost, "/api/v1/predictions", sub)
	assert.Equal(t, http.StatusCreated, code)
	code, env = call(t, srv, http.MethodPost, "/api/v1/predictions", sub)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"outcome":"unchanged"`)

	code, env = call(t, srv, http.MethodGet, "/api/v1/users/10/admissible-matches", nil)
	assert.Equal(t, http.StatusOK, code)
	var open []domain.AdmissibleMatch
	require.NoError(t, json.Unmarshal(env.Data, &open))
	require.Len(t, open, 1)
	require.NotNil(t, open[0].Prediction)

	five, one := 5, 1
	code, _ = call(t, srv, http.MethodPost, "/api/v1/matches/1/result", SetResultRequest{Score1: &five, Score2: &one})
	assert.Equal(t, http.StatusOK, code)

	code, env = call(t, srv, http.MethodPost, "/api/v1/predictions", domain.PredictionSubmission{UserID: 10, MatchID: m.ID, Score1: 0, Score2: 0})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)

	code, env = call(t, srv, http.MethodGet, "/api/v1/leaderboard?user_id=10", nil)
	assert.Equal(t, http.StatusOK, code)
	var view domain.LeaderboardView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Top, 1)
	assert.Equal(t, int64(5), view.Top[0].Points)
	require.NotNil(t, view.User)
	assert.Equal(t, int64(1), view.User.Rank)

	code, env = call(t, srv, http.MethodGet, "/api/v1/matches/1/settlement", nil)
	assert.Equal(t, http.StatusOK, code)
	var awards []domain.Award
	require.NoError(t, json.Unmarshal(env.Data, &awards))
	assert.Equal(t, []domain.Award{{UserID: 10, Username: "ann", Points: 5}}, awards)

	code, env = call(t, srv, http.MethodGet, "/api/v1/users/10/standing", nil)
	assert.Equal(t, http.StatusOK, code)
	var standing domain.UserStanding
	require.NoError(t, json.Unmarshal(env.Data, &standing))
	assert.Equal(t, int64(1), standing.Place)
	assert.Equal(t, 1, standing.Predictions)
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t, nil)
	code, _ := call(t, srv, http.MethodPost, "/api/v1/matches", CreateMatchRequest{Team1: "A", Team2: "B", StartTime: kickoff})
	require.Equal(t, http.StatusCreated, code)

	two, zero := 2, 0
	code, _ = call(t, srv, http.MethodPost, "/api/v1/matches/1/result", SetResultRequest{Score1: &two, Score2: &zero})
	require.Equal(t, http.StatusOK, code)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown match", http.MethodGet, "/api/v1/matches/99", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/matches/abc", nil, http.StatusBadRequest},
		{"empty team", http.MethodPost, "/api/v1/matches", CreateMatchRequest{Team1: " ", Team2: "B"}, http.StatusBadRequest},
		{"result changed", http.MethodPost, "/api/v1/matches/1/result", SetResultRequest{Score1: &zero, Score2: &zero}, http.StatusConflict},
		{"missing score", http.MethodPost, "/api/v1/matches/1/result", SetResultRequest{Score1: &two}, http.StatusBadRequest},
		{"live after finish", http.MethodPost, "/api/v1/matches/1/live", nil, http.StatusConflict},
		{"bad status filter", http.MethodGet, "/api/v1/matches?status=abandoned", nil, http.StatusBadRequest},
		{"negative rule", http.MethodPut, "/api/v1/points-rule", map[string]int{"exact": -1, "result": 1}, http.StatusBadRequest},
		{"bad user", http.MethodGet, "/api/v1/leaderboard?user_id=x", nil, http.StatusBadRequest},
		{"unknown user standing", http.MethodGet, "/api/v1/users/5/standing", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := call(t, srv, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestSettlementBeforeResult(t *testing.T) {
	srv := newServer(t, nil)
	code, _ := call(t, srv, http.MethodPost, "/api/v1/matches", CreateMatchRequest{Team1: "A", Team2: "B", StartTime: kickoff})
	require.Equal(t, http.StatusCreated, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/matches/1/settlement", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ErrMatchNotFinished.Error(), env.Error)
}

func TestPointsRule(t *testing.T) {
	srv := newServer(t, nil)

	code, env := call(t, srv, http.MethodPut, "/api/v1/points-rule", map[string]int{"exact": 3, "result": 2})
	assert.Equal(t, http.StatusOK, code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/points-rule", nil)
	assert.Equal(t, http.StatusOK, code)
	var rule domain.PointsRule
	require.NoError(t, json.Unmarshal(env.Data, &rule))
	assert.Equal(t, 3, rule.Exact)
	assert.Equal(t, 2, rule.Result)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/leaderboard/refresh", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodGet, "/api/v1/accuracy/result", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodGet, "/api/v1/accuracy/goal", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodGet, "/api/v1/predictions/averages?include_finished=true", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSubmitPrediction_MissingScore(t *testing.T) {
	srv := newServer(t, nil)
	code, _ := call(t, srv, http.MethodPost, "/api/v1/matches", CreateMatchRequest{Team1: "A", Team2: "B", StartTime: kickoff})
	require.Equal(t, http.StatusCreated, code)

	code, env := call(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{"user_id": 7, "username": "u", "match_id": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, domain.ErrMissingGuess.Error(), env.Error)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{"user_id": 7, "username": "u", "match_id": 1, "score1": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/matches/1/predictions", nil)
	require.Equal(t, http.StatusOK, code)
	var preds []domain.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &preds))
	assert.Empty(t, preds, "nothing is stored for an incomplete submission")
}
