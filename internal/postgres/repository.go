package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations and seeds the points rule when
// the table is empty
func (r *Repository) RunMigrations(ctx context.Context, seed domain.PointsRule) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id BIGSERIAL PRIMARY KEY,
			external_id TEXT UNIQUE,
			team1 TEXT NOT NULL CHECK (team1 <> ''),
			team2 TEXT NOT NULL CHECK (team2 <> ''),
			score1 INT CHECK (score1 >= 0),
			score2 INT CHECK (score2 >= 0),
			status TEXT NOT NULL DEFAULT 'scheduled',
			start_time TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (status <> 'finished' OR (score1 IS NOT NULL AND score2 IS NOT NULL))
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			user_id BIGINT NOT NULL REFERENCES users(id),
			match_id BIGINT NOT NULL REFERENCES matches(id),
			pred_score1 INT NOT NULL CHECK (pred_score1 >= 0),
			pred_score2 INT NOT NULL CHECK (pred_score2 >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, match_id)
		)`,
		`CREATE TABLE IF NOT EXISTS points_rules (
			id INT PRIMARY KEY CHECK (id = 1),
			exact_points INT NOT NULL CHECK (exact_points >= 0),
			result_points INT NOT NULL CHECK (result_points >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			rank BIGINT NOT NULL,
			user_id BIGINT PRIMARY KEY,
			points BIGINT NOT NULL,
			exact_count INT NOT NULL,
			result_count INT NOT NULL,
			prediction_count INT NOT NULL,
			first_prediction_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_refresh (
			id INT PRIMARY KEY CHECK (id = 1),
			refreshed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_match ON predictions(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard(rank)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO points_rules (id, exact_points, result_points) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`,
		seed.Exact, seed.Result,
	)
	if err != nil {
		return fmt.Errorf("seeding points rule: %w", err)
	}

	r.logger.Info("database migrations completed")
	return nil
}
