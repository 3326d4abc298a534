package domain

import (
	"strings"
	"time"
)

// MatchStatus represents where a match is in its lifecycle
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusFinished  MatchStatus = "finished"
)

// legacy label used by historical dumps for matches not yet played
const legacyStatusPending = "pending"

// order gives the position of a status in scheduled -> live -> finished
func (s MatchStatus) order() int {
	switch s {
	case MatchStatusScheduled:
		return 0
	case MatchStatusLive:
		return 1
	case MatchStatusFinished:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the known statuses
func (s MatchStatus) Valid() bool {
	return s.order() >= 0
}

// ParseMatchStatus maps a status label, including legacy ones, to a MatchStatus
func ParseMatchStatus(raw string) (MatchStatus, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == legacyStatusPending {
		return MatchStatusScheduled, nil
	}
	status := MatchStatus(label)
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// Score is a (home, away) goal pair
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Validate rejects negative goal counts
func (s Score) Validate() error {
	if s.Home < 0 || s.Away < 0 {
		return ErrNegativeScore
	}
	return nil
}

// Diff returns home goals minus away goals
func (s Score) Diff() int {
	return s.Home - s.Away
}

// Outcome returns 1 for a home win, 0 for a draw and -1 for an away win
func (s Score) Outcome() int {
	switch d := s.Diff(); {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}

// Match is a fixture between two teams
type Match struct {
	ID         int64       `json:"id"`
	ExternalID string      `json:"external_id,omitempty"`
	Team1      string      `json:"team1"`
	Team2      string      `json:"team2"`
	Score      *Score      `json:"score,omitempty"`
	Status     MatchStatus `json:"status"`
	StartTime  time.Time   `json:"start_time"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewMatch builds a scheduled match after validating team names
func NewMatch(team1, team2 string, start, now time.Time) (Match, error) {
	team1, team2 = strings.TrimSpace(team1), strings.TrimSpace(team2)
	if team1 == "" || team2 == "" {
		return Match{}, ErrEmptyTeamName
	}
	return Match{
		Team1:     team1,
		Team2:     team2,
		Status:    MatchStatusScheduled,
		StartTime: start,
		UpdatedAt: now,
	}, nil
}

// IsFinished reports whether the match has a final result
func (m *Match) IsFinished() bool {
	return m.Status == MatchStatusFinished
}

// SetLive moves a scheduled match to live. A live match is left untouched.
func (m *Match) SetLive(now time.Time) error {
	switch m.Status {
	case MatchStatusLive:
		return nil
	case MatchStatusFinished:
		return ErrMatchFinished
	}
	m.Status = MatchStatusLive
	m.UpdatedAt = now
	return nil
}

// SetResult finishes the match with the given score. Finishing again with the
// same score is a no-op; any other score on a finished match is refused.
func (m *Match) SetResult(score Score, now time.Time) error {
	if err := score.Validate(); err != nil {
		return err
	}
	if m.IsFinished() {
		if m.Score != nil && *m.Score == score {
			return nil
		}
		return ErrResultChanged
	}
	m.Score = &score
	m.Status = MatchStatusFinished
	m.UpdatedAt = now
	return nil
}

// Rename changes the team names of a match that has not finished
func (m *Match) Rename(team1, team2 string, now time.Time) error {
	team1, team2 = strings.TrimSpace(team1), strings.TrimSpace(team2)
	if team1 == "" || team2 == "" {
		return ErrEmptyTeamName
	}
	if team1 == m.Team1 && team2 == m.Team2 {
		return nil
	}
	if m.IsFinished() {
		return ErrTeamsImmutable
	}
	m.Team1, m.Team2 = team1, team2
	m.UpdatedAt = now
	return nil
}

// Reschedule moves the start time of a match that has not finished
func (m *Match) Reschedule(start, now time.Time) error {
	if start.Equal(m.StartTime) {
		return nil
	}
	if m.IsFinished() {
		return ErrMatchFinished
	}
	m.StartTime = start
	m.UpdatedAt = now
	return nil
}

// Advance moves the match forward to status. Moving backwards is refused and
// finishing requires a score.
func (m *Match) Advance(status MatchStatus, score *Score, now time.Time) error {
	if !status.Valid() {
		return ErrUnknownStatus
	}
	if status.order() < m.Status.order() {
		return ErrStatusRegression
	}
	switch status {
	case MatchStatusFinished:
		if score == nil {
			return ErrMissingScore
		}
		return m.SetResult(*score, now)
	case MatchStatusLive:
		return m.SetLive(now)
	}
	return nil
}

// MatchFilter narrows match listings
type MatchFilter struct {
	Statuses []MatchStatus
}

// Matches reports whether m passes the filter
func (f MatchFilter) Matches(m Match) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if m.Status == s {
			return true
		}
	}
	return false
}
