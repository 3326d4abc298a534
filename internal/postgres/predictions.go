package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/footballistika/predictor/internal/domain"
)

// EnsureUser creates the user or refreshes their display name
func (r *Repository) EnsureUser(ctx context.Context, user domain.User) (domain.User, domain.UpsertOutcome, error) {
	if err := domain.ValidateUserID(user.ID); err != nil {
		return domain.User{}, "", err
	}

	var (
		saved   domain.User
		outcome domain.UpsertOutcome
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT id, username, created_at FROM users WHERE id = $1 FOR UPDATE`, user.ID,
		).Scan(&saved.ID, &saved.Username, &saved.CreatedAt)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if user.CreatedAt.IsZero() {
				user.CreatedAt = time.Now()
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO users (id, username, created_at) VALUES ($1, $2, $3)`,
				user.ID, user.Username, user.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting user: %w", err)
			}
			saved, outcome = user, domain.OutcomeCreated
			return nil
		case err != nil:
			return fmt.Errorf("getting user: %w", err)
		}

		if !saved.RefreshUsername(user.Username) {
			outcome = domain.OutcomeUnchanged
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET username = $2 WHERE id = $1`, saved.ID, saved.Username); err != nil {
			return fmt.Errorf("updating user: %w", err)
		}
		outcome = domain.OutcomeUpdated
		return nil
	})
	if err != nil {
		return domain.User{}, "", err
	}
	return saved, outcome, nil
}

// GetUser retrieves a user by id
func (r *Repository) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var p domain.Prediction
	err := row.Scan(&p.UserID, &p.MatchID, &p.Score.Home, &p.Score.Away, &p.CreatedAt)
	return p, err
}

// GetPrediction retrieves the prediction for (userID, matchID)
func (r *Repository) GetPrediction(ctx context.Context, userID, matchID int64) (domain.Prediction, error) {
	p, err := scanPrediction(r.pool.QueryRow(ctx, `
		SELECT user_id, match_id, pred_score1, pred_score2, created_at
		FROM predictions
		WHERE user_id = $1 AND match_id = $2
	`, userID, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, domain.ErrPredictionNotFound
		}
		return domain.Prediction{}, fmt.Errorf("getting prediction: %w", err)
	}
	return p, nil
}

// ListPredictions retrieves predictions ordered by match then user
func (r *Repository) ListPredictions(ctx context.Context, filter domain.PredictionFilter) ([]domain.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, match_id, pred_score1, pred_score2, created_at
		FROM predictions
		WHERE ($1::bigint = 0 OR user_id = $1) AND ($2::bigint = 0 OR match_id = $2)
		ORDER BY match_id, user_id
	`, filter.UserID, filter.MatchID)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	return collectPredictions(rows)
}

func collectPredictions(rows pgx.Rows) ([]domain.Prediction, error) {
	defer rows.Close()

	var preds []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// UpsertPrediction writes p while holding a share lock on its match, so a
// concurrent result update cannot slip between the guard and the write
func (r *Repository) UpsertPrediction(ctx context.Context, p domain.Prediction, guard domain.PredictionGuard) (domain.Prediction, domain.UpsertOutcome, error) {
	var (
		saved   domain.Prediction
		outcome domain.UpsertOutcome
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		match, err := scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR SHARE`, p.MatchID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMatchNotFound
			}
			return fmt.Errorf("locking match: %w", err)
		}

		var userExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, p.UserID).Scan(&userExists); err != nil {
			return fmt.Errorf("checking user existence: %w", err)
		}
		if !userExists {
			return domain.ErrUserNotFound
		}

		var existing *domain.Prediction
		prev, err := scanPrediction(tx.QueryRow(ctx, `
			SELECT user_id, match_id, pred_score1, pred_score2, created_at
			FROM predictions
			WHERE user_id = $1 AND match_id = $2
			FOR UPDATE
		`, p.UserID, p.MatchID))
		switch {
		case err == nil:
			existing = &prev
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("getting prediction: %w", err)
		}

		if guard != nil {
			write, err := guard(match, existing)
			if err != nil {
				return err
			}
			if !write {
				if existing != nil {
					saved = *existing
				}
				outcome = domain.OutcomeUnchanged
				return nil
			}
		}

		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		var inserted bool
		err = tx.QueryRow(ctx, `
			INSERT INTO predictions (user_id, match_id, pred_score1, pred_score2, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, match_id)
			DO UPDATE SET pred_score1 = EXCLUDED.pred_score1,
			              pred_score2 = EXCLUDED.pred_score2,
			              created_at  = EXCLUDED.created_at
			RETURNING created_at, (xmax = 0)
		`, p.UserID, p.MatchID, p.Score.Home, p.Score.Away, p.CreatedAt).Scan(&p.CreatedAt, &inserted)
		if err != nil {
			return fmt.Errorf("upserting prediction: %w", err)
		}

		saved = p
		outcome = domain.OutcomeUpdated
		if inserted {
			outcome = domain.OutcomeCreated
		}
		return nil
	})
	if err != nil {
		return domain.Prediction{}, "", err
	}
	return saved, outcome, nil
}

// GetPointsRule returns the singleton rule row
func (r *Repository) GetPointsRule(ctx context.Context) (domain.PointsRule, error) {
	return getPointsRule(ctx, r.pool)
}

func getPointsRule(ctx context.Context, q rowQuerier) (domain.PointsRule, error) {
	var rule domain.PointsRule
	err := q.QueryRow(ctx,
		`SELECT exact_points, result_points, updated_at FROM points_rules WHERE id = 1`,
	).Scan(&rule.Exact, &rule.Result, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultPointsRule(), nil
		}
		return domain.PointsRule{}, fmt.Errorf("getting points rule: %w", err)
	}
	return rule, nil
}

// SavePointsRule replaces the singleton rule row
func (r *Repository) SavePointsRule(ctx context.Context, rule domain.PointsRule) (domain.PointsRule, error) {
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO points_rules (id, exact_points, result_points, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET exact_points = $1, result_points = $2, updated_at = $3
	`, rule.Exact, rule.Result, rule.UpdatedAt)
	if err != nil {
		return domain.PointsRule{}, fmt.Errorf("saving points rule: %w", err)
	}
	return rule, nil
}
