package domain

import (
	"encoding/json"
	"time"
)

// Prediction is a user's guessed score for one match. (UserID, MatchID) is unique.
type Prediction struct {
	UserID    int64     `json:"user_id"`
	MatchID   int64     `json:"match_id"`
	Score     Score     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// PredictionSubmission is a request to create or replace a prediction
type PredictionSubmission struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	MatchID  int64  `json:"match_id"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
}

// UnmarshalJSON refuses a submission that leaves out either score, so an
// absent value is never read as zero
func (s *PredictionSubmission) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
		MatchID  int64  `json:"match_id"`
		Score1   *int   `json:"score1"`
		Score2   *int   `json:"score2"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Score1 == nil || raw.Score2 == nil {
		return ErrMissingGuess
	}

	*s = PredictionSubmission{
		UserID:   raw.UserID,
		Username: raw.Username,
		MatchID:  raw.MatchID,
		Score1:   *raw.Score1,
		Score2:   *raw.Score2,
	}
	return nil
}

// Score returns the submitted score pair
func (s PredictionSubmission) Score() Score {
	return Score{Home: s.Score1, Away: s.Score2}
}

// PredictionFilter narrows prediction listings. Zero values match everything.
type PredictionFilter struct {
	UserID  int64
	MatchID int64
}

// Matches reports whether p passes the filter
func (f PredictionFilter) Matches(p Prediction) bool {
	if f.UserID != 0 && p.UserID != f.UserID {
		return false
	}
	if f.MatchID != 0 && p.MatchID != f.MatchID {
		return false
	}
	return true
}

// PredictionGuard decides, against the locked match row, whether a write may
// proceed. Returning write=false with a nil error leaves the row untouched.
type PredictionGuard func(match Match, existing *Prediction) (write bool, err error)

// AdmissibleMatch is an open match together with the caller's current prediction
type AdmissibleMatch struct {
	Match      Match       `json:"match"`
	Deadline   time.Time   `json:"deadline"`
	Prediction *Prediction `json:"prediction,omitempty"`
}
