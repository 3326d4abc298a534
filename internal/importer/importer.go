// Package importer reconciles historical dumps of matches and predictions
// into the stores. Every record is applied on its own; a bad record is
// reported and the run continues. Running the same dump twice changes nothing.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"

	"github.com/footballistika/predictor/internal/domain"
)

// Store is the subset of the repository the importer writes through
type Store interface {
	ListMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error)
	CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error)
	UpdateMatch(ctx context.Context, id int64, apply func(*domain.Match) error) (domain.Match, error)
	EnsureUser(ctx context.Context, user domain.User) (domain.User, domain.UpsertOutcome, error)
	UpsertPrediction(ctx context.Context, p domain.Prediction, guard domain.PredictionGuard) (domain.Prediction, domain.UpsertOutcome, error)
}

// Importer applies dumps to a Store
type Importer struct {
	store   Store
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an importer that applies predictions with up to workers goroutines
func New(store Store, workers int, logger *slog.Logger) *Importer {
	if workers <= 0 {
		workers = 1
	}
	return &Importer{store: store, workers: workers, logger: logger, now: time.Now}
}

// run carries the state of one Import call
type run struct {
	mu     sync.Mutex
	report domain.ImportReport
	index  *matchIndex
}

func (r *run) reject(source string, line int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Rejected = append(r.report.Rejected, domain.Rejection{Source: source, Line: line, Reason: err.Error()})
	switch source {
	case domain.SourceMatches:
		r.report.Matches.Rejected++
	case domain.SourcePredictions:
		r.report.Predictions.Rejected++
	}
}

// Import applies the matches dump and then the predictions dump. Either
// reader may be nil. Only an unreadable dump or a cancelled context fails the
// run; record-level problems end up in the report.
func (im *Importer) Import(ctx context.Context, matches, predictions io.Reader) (domain.ImportReport, error) {
	r := &run{report: domain.ImportReport{ID: uuid.NewString(), StartedAt: im.now()}}

	existing, err := im.store.ListMatches(ctx, domain.MatchFilter{})
	if err != nil {
		return r.report, fmt.Errorf("listing matches: %w", err)
	}
	r.index = newMatchIndex(existing)

	if matches != nil {
		if err := im.importMatches(ctx, r, matches); err != nil {
			return r.report, err
		}
	}
	if predictions != nil {
		if err := im.importPredictions(ctx, r, predictions); err != nil {
			return r.report, err
		}
	}

	sort.SliceStable(r.report.Rejected, func(i, j int) bool {
		a, b := r.report.Rejected[i], r.report.Rejected[j]
		if a.Source != b.Source {
			return a.Source == domain.SourceMatches
		}
		return a.Line < b.Line
	})
	r.report.FinishedAt = im.now()

	im.logger.Info("import finished",
		"import_id", r.report.ID,
		"matches_created", r.report.Matches.Created,
		"matches_updated", r.report.Matches.Updated,
		"predictions_created", r.report.Predictions.Created,
		"predictions_updated", r.report.Predictions.Updated,
		"rejected", len(r.report.Rejected),
	)
	return r.report, nil
}

func (im *Importer) importMatches(ctx context.Context, r *run, src io.Reader) error {
	var records []matchRecord
	err := scanLines(src, func(line int, fields []string) {
		rec, err := parseMatchRecord(line, fields)
		if err != nil {
			im.logRejection(domain.SourceMatches, line, err)
			r.reject(domain.SourceMatches, line, err)
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return err
	}

	// Applied in file order so a later line for the same match acts as an update.
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := im.applyMatch(ctx, r.index, rec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			im.logRejection(domain.SourceMatches, rec.line, err)
			r.reject(domain.SourceMatches, rec.line, err)
			continue
		}
		r.report.Matches.Add(outcome)
	}
	return nil
}

// desiredMatch applies rec to base using the domain transitions
func desiredMatch(base domain.Match, rec matchRecord, now time.Time) (domain.Match, error) {
	if rec.externalID != "" && base.ExternalID != rec.externalID {
		base.ExternalID = rec.externalID
		base.UpdatedAt = now
	}
	if err := base.Rename(rec.team1, rec.team2, now); err != nil {
		return domain.Match{}, err
	}
	if !rec.startTime.IsZero() {
		if err := base.Reschedule(rec.startTime, now); err != nil {
			return domain.Match{}, err
		}
	}
	if err := base.Advance(rec.status, rec.score, now); err != nil {
		return domain.Match{}, err
	}
	return base, nil
}

func sameMatch(a, b domain.Match) bool {
	if a.ExternalID != b.ExternalID || a.Team1 != b.Team1 || a.Team2 != b.Team2 ||
		a.Status != b.Status || !a.StartTime.Equal(b.StartTime) {
		return false
	}
	if (a.Score == nil) != (b.Score == nil) {
		return false
	}
	return a.Score == nil || *a.Score == *b.Score
}

func (im *Importer) applyMatch(ctx context.Context, idx *matchIndex, rec matchRecord) (domain.UpsertOutcome, error) {
	now := im.now()
	current, ok := idx.lookup(rec)
	if !ok {
		fresh, err := domain.NewMatch(rec.team1, rec.team2, rec.startTime, now)
		if err != nil {
			return "", err
		}
		fresh.ExternalID = rec.externalID
		if err := fresh.Advance(rec.status, rec.score, now); err != nil {
			return "", err
		}
		created, err := im.store.CreateMatch(ctx, fresh)
		if err != nil {
			return "", err
		}
		idx.put(created)
		return domain.OutcomeCreated, nil
	}

	want, err := desiredMatch(current, rec, now)
	if err != nil {
		return "", err
	}
	if sameMatch(current, want) {
		return domain.OutcomeUnchanged, nil
	}

	updated, err := im.store.UpdateMatch(ctx, current.ID, func(m *domain.Match) error {
		next, err := desiredMatch(*m, rec, now)
		if err != nil {
			return err
		}
		*m = next
		return nil
	})
	if err != nil {
		return "", err
	}
	idx.put(updated)
	return domain.OutcomeUpdated, nil
}

// importGuard admits a backfilled prediction unless it would alter a
// prediction already recorded for a finished match
func importGuard(score domain.Score) domain.PredictionGuard {
	return func(m domain.Match, existing *domain.Prediction) (bool, error) {
		if existing == nil {
			return true, nil
		}
		if existing.Score == score {
			return false, nil
		}
		if m.IsFinished() {
			return false, domain.ErrPredictionLocked
		}
		return true, nil
	}
}

func (im *Importer) importPredictions(ctx context.Context, r *run, src io.Reader) error {
	type key struct{ userID, matchID int64 }

	var order []key
	var userIDs []int64
	latest := make(map[key]predictionRecord)
	users := make(map[int64]string)
	err := scanLines(src, func(line int, fields []string) {
		rec, err := parsePredictionRecord(line, fields)
		if err != nil {
			im.logRejection(domain.SourcePredictions, line, err)
			r.reject(domain.SourcePredictions, line, err)
			return
		}
		m, ok := r.index.resolve(rec.matchRef)
		if !ok {
			err := fmt.Errorf("%w: match %q", domain.ErrMatchNotFound, rec.matchRef)
			im.logRejection(domain.SourcePredictions, line, err)
			r.reject(domain.SourcePredictions, line, err)
			return
		}

		if name, seen := users[rec.userID]; !seen {
			userIDs = append(userIDs, rec.userID)
			users[rec.userID] = rec.username
		} else if rec.username != "" && rec.username != name {
			users[rec.userID] = rec.username
		}

		k := key{rec.userID, m.ID}
		if prev, dup := latest[k]; dup {
			r.reject(domain.SourcePredictions, prev.line,
				fmt.Errorf("%w: superseded by line %d", domain.ErrValidation, rec.line))
		} else {
			order = append(order, k)
		}
		latest[k] = rec
	})
	if err != nil {
		return err
	}

	// Users first and one at a time, so parallel prediction writes never race
	// to create the same user.
	ready := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, outcome, err := im.store.EnsureUser(ctx, domain.User{ID: id, Username: users[id], CreatedAt: im.now()})
		if err != nil {
			im.logger.Warn("import user rejected", "user_id", id, "error", err)
			continue
		}
		ready[id] = true
		r.report.Users.Add(outcome)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, k := range order {
		rec := latest[k]
		matchID := k.matchID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !ready[rec.userID] {
				r.reject(domain.SourcePredictions, rec.line, domain.ErrUserNotFound)
				return nil
			}
			outcome, err := im.applyPrediction(gctx, rec, matchID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				im.logRejection(domain.SourcePredictions, rec.line, err)
				r.reject(domain.SourcePredictions, rec.line, err)
				return nil
			}
			r.mu.Lock()
			r.report.Predictions.Add(outcome)
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (im *Importer) applyPrediction(ctx context.Context, rec predictionRecord, matchID int64) (domain.UpsertOutcome, error) {
	createdAt := rec.createdAt
	if createdAt.IsZero() {
		createdAt = im.now()
	}
	p := domain.Prediction{UserID: rec.userID, MatchID: matchID, Score: rec.score, CreatedAt: createdAt}
	_, outcome, err := im.store.UpsertPrediction(ctx, p, importGuard(rec.score))
	return outcome, err
}

func (im *Importer) logRejection(source string, line int, err error) {
	im.logger.Warn("import record rejected", "source", source, "line", line, "error", err)
}

// matchIndex finds stored matches by external id, by natural key and by internal id
type matchIndex struct {
	byExternal map[string]domain.Match
	byKey      map[string]domain.Match
	byID       map[int64]domain.Match
}

func newMatchIndex(matches []domain.Match) *matchIndex {
	idx := &matchIndex{
		byExternal: make(map[string]domain.Match, len(matches)),
		byKey:      make(map[string]domain.Match, len(matches)),
		byID:       make(map[int64]domain.Match, len(matches)),
	}
	for _, m := range matches {
		idx.put(m)
	}
	return idx
}

// naturalKey identifies a match without an external id by its teams and kickoff
func naturalKey(team1, team2 string, start time.Time) string {
	key := slug.Make(team1) + "--" + slug.Make(team2)
	if !start.IsZero() {
		key += "@" + start.UTC().Format(time.RFC3339)
	}
	return key
}

func (idx *matchIndex) put(m domain.Match) {
	if prev, ok := idx.byID[m.ID]; ok {
		delete(idx.byKey, naturalKey(prev.Team1, prev.Team2, prev.StartTime))
	}
	idx.byID[m.ID] = m
	if m.ExternalID != "" {
		idx.byExternal[m.ExternalID] = m
		return
	}
	idx.byKey[naturalKey(m.Team1, m.Team2, m.StartTime)] = m
}

// lookup finds the stored match a dump record refers to. A record with an
// external id may adopt a stored match that has none but the same natural key.
func (idx *matchIndex) lookup(rec matchRecord) (domain.Match, bool) {
	if rec.externalID != "" {
		if m, ok := idx.byExternal[rec.externalID]; ok {
			return m, true
		}
	}
	m, ok := idx.byKey[naturalKey(rec.team1, rec.team2, rec.startTime)]
	return m, ok
}

// resolve maps a prediction's match reference to a stored match: external id
// first, then internal numeric id
func (idx *matchIndex) resolve(ref string) (domain.Match, bool) {
	if m, ok := idx.byExternal[ref]; ok {
		return m, true
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		m, ok := idx.byID[id]
		return m, ok
	}
	return domain.Match{}, false
}
