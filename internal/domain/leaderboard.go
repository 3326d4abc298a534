package domain

import (
	"time"
)

// Default reward values, matching the seeded points_rules row
const (
	DefaultExactPoints  = 5
	DefaultResultPoints = 1
)

// PointsRule holds the reward for an exact score and for a correct outcome
type PointsRule struct {
	Exact     int       `json:"exact"`
	Result    int       `json:"result"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPointsRule returns the 5/1 rule
func DefaultPointsRule() PointsRule {
	return PointsRule{Exact: DefaultExactPoints, Result: DefaultResultPoints}
}

// Validate rejects negative rewards
func (r PointsRule) Validate() error {
	if r.Exact < 0 || r.Result < 0 {
		return ErrInvalidRule
	}
	return nil
}

// LeaderboardEntry represents a single entry in the leaderboard. It is derived
// data and is rebuilt wholesale on every refresh.
type LeaderboardEntry struct {
	Rank              int64     `json:"rank"`
	UserID            int64     `json:"user_id"`
	Username          string    `json:"username,omitempty"`
	Points            int64     `json:"points"`
	ExactCount        int       `json:"exact_count"`
	ResultCount       int       `json:"result_count"`
	PredictionCount   int       `json:"prediction_count"`
	FirstPredictionAt time.Time `json:"first_prediction_at"`
}

// LeaderboardView is the top of the leaderboard plus the caller's own row
type LeaderboardView struct {
	Top         []LeaderboardEntry `json:"top"`
	User        *LeaderboardEntry  `json:"user,omitempty"`
	TotalUsers  int64              `json:"total_users"`
	RefreshedAt time.Time          `json:"refreshed_at,omitempty"`
}

// ResultAccuracy is the share of a user's finished-match predictions with the right outcome
type ResultAccuracy struct {
	UserID          int64   `json:"user_id"`
	Username        string  `json:"username"`
	Predictions     int     `json:"predictions"`
	Correct         int     `json:"correct"`
	AccuracyPercent float64 `json:"result_accuracy_percent"`
}

// GoalAccuracy is how close a user's predicted goal counts were, on average
type GoalAccuracy struct {
	UserID          int64   `json:"user_id"`
	Username        string  `json:"username"`
	Predictions     int     `json:"predictions"`
	AccuracyPercent float64 `json:"goal_accuracy_percent"`
}

// MatchAverage is the average predicted score for one match
type MatchAverage struct {
	Match       Match   `json:"match"`
	AvgHome     float64 `json:"avg1"`
	AvgAway     float64 `json:"avg2"`
	Predictions int     `json:"count"`
}

// Award is the points one user earned on one finished match
type Award struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Points   int    `json:"points"`
}

// UserStanding summarises a user's predictions and leaderboard position
type UserStanding struct {
	UserID                int64   `json:"user_id"`
	Predictions           int     `json:"predictions"`
	ResultAccuracyPercent float64 `json:"result_accuracy_percent"`
	GoalAccuracyPercent   float64 `json:"goal_accuracy_percent"`
	Place                 int64   `json:"place"`
	Points                int64   `json:"points"`
}

// Snapshot is a consistent read of the source-of-truth relations
type Snapshot struct {
	Matches     []Match
	Predictions []Prediction
	Users       map[int64]User
	Rule        PointsRule
}

// Username returns the display name for id, or "" when the user is unknown
func (s Snapshot) Username(id int64) string {
	if u, ok := s.Users[id]; ok {
		return u.Username
	}
	return ""
}
