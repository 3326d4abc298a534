package importer

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/footballistika/predictor/internal/domain"
)

// timestamp layouts accepted in dumps, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// matchRecord is one line of a matches dump:
// id | team1 | team2 | score1 | score2 | status [| started_at]
type matchRecord struct {
	line       int
	externalID string
	team1      string
	team2      string
	score      *domain.Score
	status     domain.MatchStatus
	startTime  time.Time
}

// predictionRecord is one line of a predictions dump:
// match_ref | user_id | username | score1 | score2 [| created_at]
type predictionRecord struct {
	line      int
	matchRef  string
	userID    int64
	username  string
	score     domain.Score
	createdAt time.Time
}

// scanLines calls fn for every non-blank, non-comment line with its 1-based number
func scanLines(r io.Reader, fn func(line int, fields []string)) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		fn(n, parts)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}
	return nil
}

// parseTime reads a dump timestamp at the microsecond precision the store
// keeps, so a re-read compares equal to what was written
func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", domain.ErrValidation, raw)
}

func parseGoals(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: goals %q are not a number", domain.ErrValidation, raw)
	}
	if n < 0 {
		return 0, domain.ErrNegativeScore
	}
	return n, nil
}

// parseOptionalScore reads a score pair where "-" or "" means not played
func parseOptionalScore(raw1, raw2 string) (*domain.Score, error) {
	missing := func(s string) bool { return s == "" || s == "-" }
	if missing(raw1) && missing(raw2) {
		return nil, nil
	}
	if missing(raw1) || missing(raw2) {
		return nil, fmt.Errorf("%w: only one side of the score is present", domain.ErrValidation)
	}
	home, err := parseGoals(raw1)
	if err != nil {
		return nil, err
	}
	away, err := parseGoals(raw2)
	if err != nil {
		return nil, err
	}
	return &domain.Score{Home: home, Away: away}, nil
}

func parseMatchRecord(line int, f []string) (matchRecord, error) {
	if len(f) != 6 && len(f) != 7 {
		return matchRecord{}, fmt.Errorf("%w: expected 6 or 7 fields, got %d", domain.ErrValidation, len(f))
	}
	rec := matchRecord{line: line, externalID: f[0], team1: f[1], team2: f[2]}
	if rec.team1 == "" || rec.team2 == "" {
		return matchRecord{}, domain.ErrEmptyTeamName
	}

	score, err := parseOptionalScore(f[3], f[4])
	if err != nil {
		return matchRecord{}, err
	}
	rec.score = score

	if rec.status, err = domain.ParseMatchStatus(f[5]); err != nil {
		return matchRecord{}, fmt.Errorf("%w: %q", err, f[5])
	}
	if rec.status == domain.MatchStatusFinished && rec.score == nil {
		return matchRecord{}, domain.ErrMissingScore
	}

	if len(f) == 7 && f[6] != "" {
		if rec.startTime, err = parseTime(f[6]); err != nil {
			return matchRecord{}, err
		}
	}
	return rec, nil
}

func parsePredictionRecord(line int, f []string) (predictionRecord, error) {
	if len(f) < 5 {
		return predictionRecord{}, fmt.Errorf("%w: expected at least 5 fields, got %d", domain.ErrValidation, len(f))
	}
	rec := predictionRecord{line: line, matchRef: f[0], username: f[2]}
	if rec.matchRef == "" {
		return predictionRecord{}, fmt.Errorf("%w: missing match reference", domain.ErrValidation)
	}

	userID, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return predictionRecord{}, fmt.Errorf("%w: user id %q is not a number", domain.ErrValidation, f[1])
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return predictionRecord{}, err
	}
	rec.userID = userID

	if rec.score.Home, err = parseGoals(f[3]); err != nil {
		return predictionRecord{}, err
	}
	if rec.score.Away, err = parseGoals(f[4]); err != nil {
		return predictionRecord{}, err
	}

	if len(f) > 5 && f[5] != "" {
		if rec.createdAt, err = parseTime(f[5]); err != nil {
			return predictionRecord{}, err
		}
	}
	return rec, nil
}
