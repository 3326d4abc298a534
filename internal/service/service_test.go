package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/deadline"
	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/leaderboard"
	"github.com/footballistika/predictor/internal/memory"
	"github.com/footballistika/predictor/internal/scoring"
)

var (
	matchDay = time.Date(2024, 6, 14, 19, 0, 0, 0, time.UTC)
	// 13:00 in Kyiv, before the 17:59 cutoff
	morning = time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	// 18:00 in Kyiv
	evening = time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc  *Service
	repo *memory.Repository
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	repo := memory.NewRepository(domain.DefaultPointsRule())
	return fixture{svc: newService(t, repo, opts...), repo: repo}
}

func newService(t *testing.T, repo Repository, opts ...Option) *Service {
	t.Helper()
	gate, err := deadline.New(deadline.DefaultCutoff, deadline.DefaultTimeZone)
	require.NoError(t, err)

	cfg := &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return morning })}, opts...)
	return New(repo, gate, scoring.SameOutcome, cfg, logger, opts...)
}

func (f fixture) match(t *testing.T, team1, team2 string) domain.Match {
	t.Helper()
	m, err := f.svc.CreateMatch(context.Background(), team1, team2, matchDay)
	require.NoError(t, err)
	return m
}

func (f fixture) predict(t *testing.T, user int64, matchID int64, h, a int) {
	t.Helper()
	_, _, err := f.svc.SubmitPrediction(context.Background(), domain.PredictionSubmission{
		UserID: user, Username: "u", MatchID: matchID, Score1: h, Score2: a,
	}, morning)
	require.NoError(t, err)
}

func TestSubmitPrediction_Order(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.match(t, "Germany", "Scotland")

	_, _, err := f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, MatchID: 99}, morning)
	assert.True(t, domain.IsNotFoundError(err), "unknown match")

	_, _, err = f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, MatchID: m.ID, Score1: -1}, evening)
	assert.True(t, domain.IsDeadlineExceededError(err), "deadline is checked before the score")

	_, _, err = f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, MatchID: m.ID, Score1: -1}, morning)
	assert.True(t, domain.IsValidationError(err))

	_, _, err = f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, MatchID: m.ID}, morning)
	assert.ErrorIs(t, err, domain.ErrUserNotFound, "user without a name is not created implicitly")

	_, _, err = f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 0, MatchID: m.ID}, morning)
	assert.True(t, domain.IsValidationError(err))
}

func TestSubmitPrediction_Upsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.match(t, "Germany", "Scotland")
	sub := domain.PredictionSubmission{UserID: 1, Username: "ann", MatchID: m.ID, Score1: 2, Score2: 1}

	_, out, err := f.svc.SubmitPrediction(ctx, sub, morning)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, out)

	_, out, err = f.svc.SubmitPrediction(ctx, sub, morning)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, out)

	sub.Score1 = 3
	p, out, err := f.svc.SubmitPrediction(ctx, sub, morning)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, out)
	assert.Equal(t, domain.Score{Home: 3, Away: 1}, p.Score)

	preds, err := f.svc.PredictionsForMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, preds, 1)
}

func TestSubmitPrediction_FinishedMatchRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.match(t, "Germany", "Scotland")

	_, err := f.svc.SetResult(ctx, m.ID, domain.Score{Home: 5, Away: 1})
	require.NoError(t, err)

	_, _, err = f.svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, Username: "a", MatchID: m.ID}, morning)
	assert.ErrorIs(t, err, domain.ErrPredictionsClosed)
}

func TestSubmitPredictionBatch(t *testing.T) {
	f := newFixture(t)
	m := f.match(t, "Germany", "Scotland")

	res, err := f.svc.SubmitPredictionBatch(context.Background(), []domain.PredictionSubmission{
		{UserID: 1, Username: "a", MatchID: m.ID, Score1: 1},
		{UserID: 2, Username: "b", MatchID: 404},
		{UserID: 3, Username: "c", MatchID: m.ID, Score2: 2},
	}, morning)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Stored: 2, Rejected: 1}, res)
}

func TestSetResult_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.match(t, "Germany", "Scotland")

	live, err := f.svc.SetLive(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusLive, live.Status)

	_, err = f.svc.SetResult(ctx, m.ID, domain.Score{Home: 5, Away: 1})
	require.NoError(t, err)

	_, err = f.svc.SetResult(ctx, m.ID, domain.Score{Home: 5, Away: 1})
	assert.NoError(t, err, "same score again is a no-op")

	_, err = f.svc.SetResult(ctx, m.ID, domain.Score{Home: 1, Away: 1})
	assert.True(t, domain.IsInvalidTransitionError(err))

	got, err := f.svc.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Score{Home: 5, Away: 1}, *got.Score)

	_, err = f.svc.SetLive(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMatchFinished)

	_, err = f.svc.SetResult(ctx, 99, domain.Score{})
	assert.True(t, domain.IsNotFoundError(err))

	_, err = f.svc.SetResult(ctx, m.ID, domain.Score{Home: -1})
	assert.True(t, domain.IsValidationError(err))
}

func TestCreateMatch_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateMatch(context.Background(), " ", "Scotland", matchDay)
	assert.ErrorIs(t, err, domain.ErrEmptyTeamName)
}

// Three users over two finished matches and one open one. U has an exact
// hit and a correct outcome, V one exact hit, W one correct outcome.
func TestLeaderboardScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.match(t, "Germany", "Scotland")
	b := f.match(t, "Hungary", "Switzerland")
	c := f.match(t, "Spain", "Croatia")

	const u, v, w = 1, 2, 3
	f.predict(t, u, a.ID, 2, 1)
	f.predict(t, u, b.ID, 1, 0)
	f.predict(t, v, a.ID, 2, 1)
	f.predict(t, v, b.ID, 0, 3)
	f.predict(t, w, a.ID, 3, 0)
	f.predict(t, w, c.ID, 1, 1)

	_, err := f.svc.SetResult(ctx, a.ID, domain.Score{Home: 2, Away: 1})
	require.NoError(t, err)
	_, err = f.svc.SetResult(ctx, b.ID, domain.Score{Home: 3, Away: 1})
	require.NoError(t, err)

	view, err := f.svc.Leaderboard(ctx, 0, w)
	require.NoError(t, err)
	require.Len(t, view.Top, 3)
	assert.Equal(t, []int64{u, v, w}, []int64{view.Top[0].UserID, view.Top[1].UserID, view.Top[2].UserID})
	assert.Equal(t, []int64{6, 5, 1}, []int64{view.Top[0].Points, view.Top[1].Points, view.Top[2].Points})
	require.NotNil(t, view.User)
	assert.Equal(t, int64(3), view.User.Rank)
	assert.Equal(t, int64(3), view.TotalUsers)

	awards, err := f.svc.SettleMatch(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, awards, 3)
	assert.Equal(t, 5, awards[0].Points)

	_, err = f.svc.SettleMatch(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFinished)

	standing, err := f.svc.UserStanding(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 2, standing.Predictions)
	assert.Equal(t, int64(3), standing.Place)
	assert.Equal(t, int64(1), standing.Points)
	assert.InDelta(t, 100.0, standing.ResultAccuracyPercent, 1e-9)
}

func TestUpdatePointsRule_RebuildsLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.match(t, "Germany", "Scotland")
	f.predict(t, 1, a.ID, 2, 1)
	f.predict(t, 2, a.ID, 1, 0)
	_, err := f.svc.SetResult(ctx, a.ID, domain.Score{Home: 2, Away: 1})
	require.NoError(t, err)

	_, err = f.svc.UpdatePointsRule(ctx, -1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	rule, err := f.svc.UpdatePointsRule(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rule.Exact)

	view, err := f.svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, view.Top, 2)
	assert.Equal(t, int64(3), view.Top[0].Points)
	assert.Equal(t, int64(2), view.Top[1].Points)
}

func TestAdmissibleMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.match(t, "Germany", "Scotland")
	b := f.match(t, "Hungary", "Switzerland")
	_, err := f.svc.SetResult(ctx, b.ID, domain.Score{})
	require.NoError(t, err)
	f.predict(t, 1, a.ID, 1, 0)

	open, err := f.svc.AdmissibleMatches(ctx, 1, morning)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, a.ID, open[0].Match.ID)
	require.NotNil(t, open[0].Prediction)
	assert.Equal(t, 1, open[0].Prediction.Score.Home)

	closed, err := f.svc.AdmissibleMatches(ctx, 1, evening)
	require.NoError(t, err)
	assert.Empty(t, closed)
}

type stubCache struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
	at      time.Time
	fail    bool
}

func (c *stubCache) ReplaceLeaderboard(_ context.Context, entries []domain.LeaderboardEntry, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.entries, c.at = entries, at
	return nil
}

func (c *stubCache) View(_ context.Context, limit int, userID int64) (domain.LeaderboardView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return domain.LeaderboardView{}, errors.New("cache down")
	}
	top, own := leaderboard.TopWithUser(c.entries, userID, limit)
	return domain.LeaderboardView{Top: top, User: own, TotalUsers: int64(len(c.entries)), RefreshedAt: c.at}, nil
}

func TestLeaderboard_CacheAndFallback(t *testing.T) {
	cache := &stubCache{}
	f := newFixture(t, WithCache(cache))
	ctx := context.Background()
	a := f.match(t, "Germany", "Scotland")
	f.predict(t, 1, a.ID, 2, 1)
	_, err := f.svc.SetResult(ctx, a.ID, domain.Score{Home: 2, Away: 1})
	require.NoError(t, err)

	require.Len(t, cache.entries, 1)
	view, err := f.svc.Leaderboard(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, morning, view.RefreshedAt)
	require.NotNil(t, view.User)

	cache.fail = true
	view, err = f.svc.Leaderboard(ctx, 5, 1)
	require.NoError(t, err, "falls back to the stored projection")
	assert.Len(t, view.Top, 1)

	_, err = f.svc.RefreshLeaderboard(ctx)
	assert.NoError(t, err, "cache failure does not fail a refresh")
}

func TestWarmCache(t *testing.T) {
	cache := &stubCache{}
	f := newFixture(t, WithCache(cache))
	ctx := context.Background()

	require.NoError(t, f.svc.WarmCache(ctx))
	at, err := f.svc.LastRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, morning, at, "first warm builds the projection")

	cache.entries = nil
	require.NoError(t, f.repo.ReplaceLeaderboard(ctx, []domain.LeaderboardEntry{{Rank: 1, UserID: 9}}, evening))
	require.NoError(t, f.svc.WarmCache(ctx))
	assert.Len(t, cache.entries, 1)
	assert.Equal(t, evening, cache.at)
}

func TestAccuracyAndAverages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.match(t, "Germany", "Scotland")
	b := f.match(t, "Hungary", "Switzerland")
	f.predict(t, 1, a.ID, 2, 1)
	f.predict(t, 2, a.ID, 0, 1)
	f.predict(t, 1, b.ID, 1, 1)
	f.predict(t, 2, b.ID, 3, 3)
	_, err := f.svc.SetResult(ctx, a.ID, domain.Score{Home: 2, Away: 1})
	require.NoError(t, err)

	results, err := f.svc.ResultAccuracy(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].UserID)

	goals, err := f.svc.GoalAccuracy(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.InDelta(t, 100.0, goals[0].AccuracyPercent, 1e-9)

	avgs, err := f.svc.Averages(ctx, false)
	require.NoError(t, err)
	require.Len(t, avgs, 1)
	assert.InDelta(t, 2.0, avgs[0].AvgHome, 1e-9)
}

func TestUserStanding_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UserStanding(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSubmitPrediction_ConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.match(t, "Germany", "Scotland")

	const n = 16
	outcomes := make([]domain.UpsertOutcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := domain.PredictionSubmission{UserID: 1, Username: "u", MatchID: m.ID, Score1: i, Score2: 0}
			_, outcomes[i], errs[i] = f.svc.SubmitPrediction(ctx, sub, morning)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if outcomes[i] == domain.OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "only the first writer creates the row")

	preds, err := f.svc.PredictionsForMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, int64(1), preds[0].UserID)
	assert.GreaterOrEqual(t, preds[0].Score.Home, 0)
	assert.Less(t, preds[0].Score.Home, n)
	assert.Equal(t, 0, preds[0].Score.Away)
}

// pausingRepo holds the first snapshot it hands out until release is closed
type pausingRepo struct {
	*memory.Repository
	once    sync.Once
	taken   chan struct{}
	release chan struct{}
}

func (r *pausingRepo) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	snap, err := r.Repository.Snapshot(ctx)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.taken)
		<-r.release
	}
	return snap, err
}

func TestRefreshLeaderboard_OverlappingRefreshKeepsNewest(t *testing.T) {
	repo := &pausingRepo{
		Repository: memory.NewRepository(domain.DefaultPointsRule()),
		taken:      make(chan struct{}),
		release:    make(chan struct{}),
	}
	var clockMu sync.Mutex
	clock := morning
	svc := newService(t, repo, WithClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()

	m, err := svc.CreateMatch(ctx, "Germany", "Scotland", matchDay)
	require.NoError(t, err)
	_, _, err = svc.SubmitPrediction(ctx, domain.PredictionSubmission{UserID: 1, Username: "u", MatchID: m.ID, Score1: 2, Score2: 1}, morning)
	require.NoError(t, err)

	background := make(chan error, 1)
	go func() {
		_, err := svc.RefreshLeaderboard(ctx)
		background <- err
	}()
	<-repo.taken

	settled := make(chan error, 1)
	go func() {
		_, err := svc.SetResult(ctx, m.ID, domain.Score{Home: 2, Away: 1})
		settled <- err
	}()
	require.Eventually(t, func() bool {
		got, err := repo.GetMatch(ctx, m.ID)
		return err == nil && got.IsFinished()
	}, time.Second, time.Millisecond)
	close(repo.release)

	require.NoError(t, <-background)
	require.NoError(t, <-settled)

	entries, _, err := repo.LeaderboardEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the result recorded during the first refresh is on the board")
	assert.Equal(t, 1, entries[0].ExactCount)

	fresh, err := svc.RefreshLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, entries)
}
