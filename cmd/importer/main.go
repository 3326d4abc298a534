// Command importer reconciles a historical matches/predictions dump into the
// configured store and rebuilds the leaderboard afterwards.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/deadline"
	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/importer"
	"github.com/footballistika/predictor/internal/memory"
	"github.com/footballistika/predictor/internal/postgres"
	"github.com/footballistika/predictor/internal/redis"
	"github.com/footballistika/predictor/internal/scoring"
	"github.com/footballistika/predictor/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	matchesName := flag.String("matches", "", "Matches dump (file path, or object key with -s3)")
	predictionsName := flag.String("predictions", "", "Predictions dump (file path, or object key with -s3)")
	fromS3 := flag.Bool("s3", false, "Read dumps from the configured S3 bucket")
	noRefresh := flag.Bool("no-refresh", false, "Skip the leaderboard rebuild after the import")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *matchesName == "" && *predictionsName == "" {
		logger.Error("nothing to import, pass -matches and/or -predictions")
		os.Exit(2)
	}

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Warn("failed to load env file", "error", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := domain.PointsRule{Exact: cfg.Scoring.ExactPoints, Result: cfg.Scoring.ResultPoints}
	var repo service.Repository
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("importing into in-memory storage, results are discarded on exit")
		repo = memory.NewRepository(seed)
	} else {
		postgresRepo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		if err := postgresRepo.RunMigrations(ctx, seed); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		repo = postgresRepo
	}

	var src importer.Source = importer.FileSource{}
	if *fromS3 {
		s3src, err := importer.NewS3Source(ctx, cfg.Import.S3)
		if err != nil {
			logger.Error("failed to configure S3 source", "error", err)
			os.Exit(1)
		}
		src = s3src
	}

	report, err := importer.New(repo, cfg.Import.Workers, logger).Run(ctx, src, *matchesName, *predictionsName)
	if err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", "error", err)
	}

	if *noRefresh || !report.Changed() {
		return
	}

	var opts []service.Option
	if cfg.Redis.Enabled {
		cache, err := redis.NewLeaderboardCache(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, refreshing stored leaderboard only", "error", err)
		} else {
			defer cache.Close()
			opts = append(opts, service.WithCache(cache))
		}
	}

	gate, err := deadline.New(cfg.Deadline.Cutoff, cfg.Deadline.TimeZone)
	if err != nil {
		logger.Error("invalid deadline configuration", "error", err)
		os.Exit(1)
	}
	classify, err := scoring.ParseClassifier(cfg.Scoring.Classifier)
	if err != nil {
		logger.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	svc := service.New(repo, gate, classify, &cfg.Leaderboard, logger, opts...)
	if _, err := svc.RefreshLeaderboard(ctx); err != nil {
		logger.Error("failed to refresh leaderboard", "error", err)
		os.Exit(1)
	}
}
