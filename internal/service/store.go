package service

import (
	"context"
	"time"

	"github.com/footballistika/predictor/internal/domain"
)

// MatchStore persists matches. UpdateMatch runs apply against the current row
// under a lock and stores the result only when apply succeeds.
type MatchStore interface {
	CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error)
	GetMatch(ctx context.Context, id int64) (domain.Match, error)
	ListMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error)
	UpdateMatch(ctx context.Context, id int64, apply func(*domain.Match) error) (domain.Match, error)
}

// UserStore persists users
type UserStore interface {
	EnsureUser(ctx context.Context, user domain.User) (domain.User, domain.UpsertOutcome, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// PredictionStore persists predictions, one per (user, match). UpsertPrediction
// calls guard with the match row locked and writes only if guard allows it.
type PredictionStore interface {
	GetPrediction(ctx context.Context, userID, matchID int64) (domain.Prediction, error)
	ListPredictions(ctx context.Context, filter domain.PredictionFilter) ([]domain.Prediction, error)
	UpsertPrediction(ctx context.Context, p domain.Prediction, guard domain.PredictionGuard) (domain.Prediction, domain.UpsertOutcome, error)
}

// RuleStore persists the singleton points rule
type RuleStore interface {
	GetPointsRule(ctx context.Context) (domain.PointsRule, error)
	SavePointsRule(ctx context.Context, rule domain.PointsRule) (domain.PointsRule, error)
}

// ProjectionStore holds the derived leaderboard. Replace swaps it atomically.
type ProjectionStore interface {
	ReplaceLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, refreshedAt time.Time) error
	LeaderboardEntries(ctx context.Context) ([]domain.LeaderboardEntry, time.Time, error)
}

// Repository is the full source-of-truth store
type Repository interface {
	MatchStore
	UserStore
	PredictionStore
	RuleStore
	ProjectionStore

	// Snapshot reads matches, predictions and users in one consistent view
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// LeaderboardCache is a read-optimised copy of the projection. View reads the
// top entries, one user's entry and the refresh metadata from the same board.
type LeaderboardCache interface {
	ReplaceLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, refreshedAt time.Time) error
	View(ctx context.Context, limit int, userID int64) (domain.LeaderboardView, error)
}
