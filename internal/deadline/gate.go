// Package deadline decides whether predictions for a match are still accepted.
package deadline

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/footballistika/predictor/internal/domain"
)

// Defaults used by the original competition
const (
	DefaultCutoff   = "17:59"
	DefaultTimeZone = "Europe/Kyiv"
)

// Gate applies a fixed daily wall-clock cutoff in one canonical time zone
type Gate struct {
	hour     int
	minute   int
	location *time.Location
}

// New builds a gate from an "HH:MM" cutoff and an IANA time zone name
func New(cutoff, timeZone string) (*Gate, error) {
	if cutoff == "" {
		cutoff = DefaultCutoff
	}
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	t, err := time.Parse("15:04", cutoff)
	if err != nil {
		return nil, fmt.Errorf("parsing cutoff %q: %w", cutoff, err)
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", timeZone, err)
	}
	return NewInLocation(t.Hour(), t.Minute(), loc), nil
}

// NewInLocation builds a gate from explicit parts
func NewInLocation(hour, minute int, loc *time.Location) *Gate {
	return &Gate{hour: hour, minute: minute, location: loc}
}

// Location returns the canonical time zone
func (g *Gate) Location() *time.Location {
	return g.location
}

// Deadline returns the cutoff on the match's start day. A match without a
// start time is gated on the day of now.
func (g *Gate) Deadline(match domain.Match, now time.Time) time.Time {
	day := match.StartTime
	if day.IsZero() {
		day = now
	}
	day = day.In(g.location)
	return time.Date(day.Year(), day.Month(), day.Day(), g.hour, g.minute, 0, 0, g.location)
}

// IsAdmissible reports whether a prediction for match may be written at now
func (g *Gate) IsAdmissible(match domain.Match, now time.Time) bool {
	return g.Check(match, now) == nil
}

// Check is IsAdmissible with the reason for refusal
func (g *Gate) Check(match domain.Match, now time.Time) error {
	if match.IsFinished() {
		return domain.ErrPredictionsClosed
	}
	if !now.Before(g.Deadline(match, now)) {
		return domain.ErrDeadlinePassed
	}
	return nil
}
