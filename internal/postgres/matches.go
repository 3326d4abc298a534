package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/footballistika/predictor/internal/domain"
)

const uniqueViolation = "23505"

const matchColumns = `id, external_id, team1, team2, score1, score2, status, start_time, updated_at`

// matchRow holds the nullable columns of a match while scanning
type matchRow struct {
	externalID *string
	score1     *int
	score2     *int
	status     string
	startTime  *time.Time
}

func scanMatch(row pgx.Row) (domain.Match, error) {
	var m domain.Match
	var raw matchRow
	if err := row.Scan(
		&m.ID,
		&raw.externalID,
		&m.Team1,
		&m.Team2,
		&raw.score1,
		&raw.score2,
		&raw.status,
		&raw.startTime,
		&m.UpdatedAt,
	); err != nil {
		return domain.Match{}, err
	}

	if raw.externalID != nil {
		m.ExternalID = *raw.externalID
	}
	if raw.score1 != nil && raw.score2 != nil {
		m.Score = &domain.Score{Home: *raw.score1, Away: *raw.score2}
	}
	if raw.startTime != nil {
		m.StartTime = *raw.startTime
	}
	m.Status = domain.MatchStatus(raw.status)
	return m, nil
}

// matchParams flattens a match into nullable column values
func matchParams(m domain.Match) (externalID *string, score1, score2 *int, startTime *time.Time) {
	if m.ExternalID != "" {
		externalID = &m.ExternalID
	}
	if m.Score != nil {
		score1, score2 = &m.Score.Home, &m.Score.Away
	}
	if !m.StartTime.IsZero() {
		startTime = &m.StartTime
	}
	return externalID, score1, score2, startTime
}

func mapMatchWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateMatch
	}
	return err
}

// CreateMatch inserts a new match
func (r *Repository) CreateMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	query := `
		INSERT INTO matches (external_id, team1, team2, score1, score2, status, start_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + matchColumns
	externalID, score1, score2, startTime := matchParams(m)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}

	created, err := scanMatch(r.pool.QueryRow(ctx, query,
		externalID, m.Team1, m.Team2, score1, score2, string(m.Status), startTime, m.UpdatedAt,
	))
	if err != nil {
		return domain.Match{}, fmt.Errorf("creating match: %w", mapMatchWriteError(err))
	}
	return created, nil
}

// GetMatch retrieves a match by id
func (r *Repository) GetMatch(ctx context.Context, id int64) (domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Match{}, domain.ErrMatchNotFound
		}
		return domain.Match{}, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// ListMatches retrieves matches in id order, optionally restricted to some statuses
func (r *Repository) ListMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, statuses)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// UpdateMatch locks the row, applies the change and writes it back in one transaction
func (r *Repository) UpdateMatch(ctx context.Context, id int64, apply func(*domain.Match) error) (domain.Match, error) {
	var updated domain.Match
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMatchNotFound
			}
			return fmt.Errorf("locking match: %w", err)
		}

		updated = current
		if current.Score != nil {
			s := *current.Score
			updated.Score = &s
		}
		if err := apply(&updated); err != nil {
			return err
		}

		externalID, score1, score2, startTime := matchParams(updated)
		_, err = tx.Exec(ctx, `
			UPDATE matches
			SET external_id = $2, team1 = $3, team2 = $4, score1 = $5, score2 = $6,
				status = $7, start_time = $8, updated_at = $9
			WHERE id = $1
		`, id, externalID, updated.Team1, updated.Team2, score1, score2, string(updated.Status), startTime, updated.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating match: %w", mapMatchWriteError(err))
		}
		return nil
	})
	if err != nil {
		return domain.Match{}, err
	}
	return updated, nil
}
