package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/footballistika/predictor/internal/domain"
)

// Snapshot reads matches, predictions and users in one repeatable-read,
// read-only transaction so the leaderboard sees a single point in time
func (r *Repository) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{Users: make(map[int64]domain.User)}

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, r.pool, opts, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY id`)
		if err != nil {
			return fmt.Errorf("reading matches: %w", err)
		}
		for rows.Next() {
			m, err := scanMatch(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scanning match: %w", err)
			}
			snap.Matches = append(snap.Matches, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading matches: %w", err)
		}

		rows, err = tx.Query(ctx, `
			SELECT user_id, match_id, pred_score1, pred_score2, created_at
			FROM predictions
			ORDER BY match_id, user_id
		`)
		if err != nil {
			return fmt.Errorf("reading predictions: %w", err)
		}
		if snap.Predictions, err = collectPredictions(rows); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT id, username, created_at FROM users`)
		if err != nil {
			return fmt.Errorf("reading users: %w", err)
		}
		for rows.Next() {
			var u domain.User
			if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scanning user: %w", err)
			}
			snap.Users[u.ID] = u
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading users: %w", err)
		}

		snap.Rule, err = getPointsRule(ctx, tx)
		return err
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// rowQuerier is satisfied by both the pool and a transaction
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// leaderboardLockKey names the advisory lock held while the projection is replaced
const leaderboardLockKey = 0x6c62

// ReplaceLeaderboard swaps the stored projection in one transaction. Writers
// on every instance queue on an advisory lock, and a projection older than the
// stored one is refused.
func (r *Repository) ReplaceLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, refreshedAt time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, leaderboardLockKey); err != nil {
			return fmt.Errorf("locking leaderboard: %w", err)
		}

		var current time.Time
		err := tx.QueryRow(ctx, `SELECT refreshed_at FROM leaderboard_refresh WHERE id = 1`).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("getting leaderboard refresh time: %w", err)
		case refreshedAt.Before(current):
			return domain.ErrStaleLeaderboard
		}

		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
			return fmt.Errorf("clearing leaderboard: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboard"},
			[]string{"rank", "user_id", "points", "exact_count", "result_count", "prediction_count", "first_prediction_at"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{e.Rank, e.UserID, e.Points, e.ExactCount, e.ResultCount, e.PredictionCount, e.FirstPredictionAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copying leaderboard: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO leaderboard_refresh (id, refreshed_at) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET refreshed_at = $1
		`, refreshedAt)
		if err != nil {
			return fmt.Errorf("stamping leaderboard refresh: %w", err)
		}
		return nil
	})
}

// LeaderboardEntries returns the stored projection in rank order
func (r *Repository) LeaderboardEntries(ctx context.Context) ([]domain.LeaderboardEntry, time.Time, error) {
	var refreshedAt time.Time
	err := r.pool.QueryRow(ctx, `SELECT refreshed_at FROM leaderboard_refresh WHERE id = 1`).Scan(&refreshedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("getting leaderboard refresh time: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT l.rank, l.user_id, COALESCE(u.username, ''), l.points,
			l.exact_count, l.result_count, l.prediction_count, l.first_prediction_at
		FROM leaderboard l
		LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.rank
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("getting leaderboard entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		err := rows.Scan(&e.Rank, &e.UserID, &e.Username, &e.Points,
			&e.ExactCount, &e.ResultCount, &e.PredictionCount, &e.FirstPredictionAt)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, refreshedAt, rows.Err()
}
