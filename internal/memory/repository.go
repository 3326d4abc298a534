// Package memory is an in-process implementation of the service repository.
// A single mutex gives every operation the same atomicity the Postgres
// repository gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/footballistika/predictor/internal/domain"
)

type predictionKey struct {
	userID, matchID int64
}

// Repository provides in-memory data access
type Repository struct {
	mu          sync.RWMutex
	nextMatchID int64
	matches     map[int64]domain.Match
	users       map[int64]domain.User
	predictions map[predictionKey]domain.Prediction
	rule        domain.PointsRule
	board       []domain.LeaderboardEntry
	refreshedAt time.Time
	now         func() time.Time
}

// NewRepository creates an empty repository seeded with rule
func NewRepository(rule domain.PointsRule) *Repository {
	return &Repository{
		matches:     make(map[int64]domain.Match),
		users:       make(map[int64]domain.User),
		predictions: make(map[predictionKey]domain.Prediction),
		rule:        rule,
		now:         time.Now,
	}
}

func cloneMatch(m domain.Match) domain.Match {
	if m.Score != nil {
		s := *m.Score
		m.Score = &s
	}
	return m
}

// CreateMatch stores m under the next id
func (r *Repository) CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.externalIDTaken(m.ExternalID, 0) {
		return domain.Match{}, domain.ErrDuplicateMatch
	}
	r.nextMatchID++
	m.ID = r.nextMatchID
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = r.now()
	}
	r.matches[m.ID] = cloneMatch(m)
	return cloneMatch(m), nil
}

func (r *Repository) externalIDTaken(externalID string, self int64) bool {
	if externalID == "" {
		return false
	}
	for id, m := range r.matches {
		if id != self && m.ExternalID == externalID {
			return true
		}
	}
	return false
}

// GetMatch retrieves a match by id
func (r *Repository) GetMatch(ctx context.Context, id int64) (domain.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

// ListMatches returns matches passing filter, ordered by id
func (r *Repository) ListMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listMatches(filter), nil
}

func (r *Repository) listMatches(filter domain.MatchFilter) []domain.Match {
	matches := make([]domain.Match, 0, len(r.matches))
	for _, m := range r.matches {
		if filter.Matches(m) {
			matches = append(matches, cloneMatch(m))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

// UpdateMatch applies a change to a match atomically
func (r *Repository) UpdateMatch(ctx context.Context, id int64, apply func(*domain.Match) error) (domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	next := cloneMatch(current)
	if err := apply(&next); err != nil {
		return cloneMatch(current), err
	}
	if r.externalIDTaken(next.ExternalID, id) {
		return cloneMatch(current), domain.ErrDuplicateMatch
	}
	r.matches[id] = cloneMatch(next)
	return next, nil
}

// EnsureUser creates the user or refreshes its display name
func (r *Repository) EnsureUser(ctx context.Context, user domain.User) (domain.User, domain.UpsertOutcome, error) {
	if err := domain.ValidateUserID(user.ID); err != nil {
		return domain.User{}, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		if user.CreatedAt.IsZero() {
			user.CreatedAt = r.now()
		}
		r.users[user.ID] = user
		return user, domain.OutcomeCreated, nil
	}
	if existing.RefreshUsername(user.Username) {
		r.users[user.ID] = existing
		return existing, domain.OutcomeUpdated, nil
	}
	return existing, domain.OutcomeUnchanged, nil
}

// GetUser retrieves a user by id
func (r *Repository) GetUser(ctx context.Context, id int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// GetPrediction retrieves the prediction for (userID, matchID)
func (r *Repository) GetPrediction(ctx context.Context, userID, matchID int64) (domain.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.predictions[predictionKey{userID, matchID}]
	if !ok {
		return domain.Prediction{}, domain.ErrPredictionNotFound
	}
	return p, nil
}

// ListPredictions returns predictions passing filter ordered by match then user
func (r *Repository) ListPredictions(ctx context.Context, filter domain.PredictionFilter) ([]domain.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listPredictions(filter), nil
}

func (r *Repository) listPredictions(filter domain.PredictionFilter) []domain.Prediction {
	preds := make([]domain.Prediction, 0, len(r.predictions))
	for _, p := range r.predictions {
		if filter.Matches(p) {
			preds = append(preds, p)
		}
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].MatchID != preds[j].MatchID {
			return preds[i].MatchID < preds[j].MatchID
		}
		return preds[i].UserID < preds[j].UserID
	})
	return preds
}

// UpsertPrediction inserts or replaces the prediction for (p.UserID, p.MatchID)
func (r *Repository) UpsertPrediction(ctx context.Context, p domain.Prediction, guard domain.PredictionGuard) (domain.Prediction, domain.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match, ok := r.matches[p.MatchID]
	if !ok {
		return domain.Prediction{}, "", domain.ErrMatchNotFound
	}
	if _, ok := r.users[p.UserID]; !ok {
		return domain.Prediction{}, "", domain.ErrUserNotFound
	}

	key := predictionKey{p.UserID, p.MatchID}
	var existing *domain.Prediction
	if prev, ok := r.predictions[key]; ok {
		existing = &prev
	}

	if guard != nil {
		write, err := guard(cloneMatch(match), existing)
		if err != nil {
			return domain.Prediction{}, "", err
		}
		if !write {
			if existing == nil {
				return domain.Prediction{}, domain.OutcomeUnchanged, nil
			}
			return *existing, domain.OutcomeUnchanged, nil
		}
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.predictions[key] = p
	if existing != nil {
		return p, domain.OutcomeUpdated, nil
	}
	return p, domain.OutcomeCreated, nil
}

// GetPointsRule returns the current rule
func (r *Repository) GetPointsRule(ctx context.Context) (domain.PointsRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rule, nil
}

// SavePointsRule replaces the current rule
func (r *Repository) SavePointsRule(ctx context.Context, rule domain.PointsRule) (domain.PointsRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = r.now()
	}
	r.rule = rule
	return rule, nil
}

// Snapshot copies matches, predictions and users under one read lock
func (r *Repository) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[int64]domain.User, len(r.users))
	for id, u := range r.users {
		users[id] = u
	}
	return domain.Snapshot{
		Matches:     r.listMatches(domain.MatchFilter{}),
		Predictions: r.listPredictions(domain.PredictionFilter{}),
		Users:       users,
		Rule:        r.rule,
	}, nil
}

// ReplaceLeaderboard swaps the stored projection unless a newer one is
// already in place
func (r *Repository) ReplaceLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, refreshedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if refreshedAt.Before(r.refreshedAt) {
		return domain.ErrStaleLeaderboard
	}

	r.board = append([]domain.LeaderboardEntry(nil), entries...)
	r.refreshedAt = refreshedAt
	return nil
}

// LeaderboardEntries returns the stored projection in rank order
func (r *Repository) LeaderboardEntries(ctx context.Context) ([]domain.LeaderboardEntry, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.LeaderboardEntry(nil), r.board...), r.refreshedAt, nil
}
