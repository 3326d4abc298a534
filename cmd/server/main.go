package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/deadline"
	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/handler"
	"github.com/footballistika/predictor/internal/kafka"
	"github.com/footballistika/predictor/internal/memory"
	"github.com/footballistika/predictor/internal/postgres"
	"github.com/footballistika/predictor/internal/redis"
	"github.com/footballistika/predictor/internal/scoring"
	"github.com/footballistika/predictor/internal/service"
	"github.com/footballistika/predictor/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Warn("failed to load env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.ReadinessCheck{}
	seed := domain.PointsRule{Exact: cfg.Scoring.ExactPoints, Result: cfg.Scoring.ResultPoints}

	var repo service.Repository
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		repo = memory.NewRepository(seed)
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		if err := postgresRepo.RunMigrations(ctx, seed); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		checks["postgres"] = postgresRepo.Ping
		repo = postgresRepo
	}

	var opts []service.Option
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		cache, err := redis.NewLeaderboardCache(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		logger.Info("connected to Redis")
		checks["redis"] = cache.Ping
		opts = append(opts, service.WithCache(cache))
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

	// The refresh worker also warms the cache; without it the cache is filled once here.
	refreshWorker := worker.NewRefreshWorker(svc, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	} else if err := svc.WarmCache(ctx); err != nil {
		logger.Warn("failed to warm leaderboard cache", "error", err)
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, svc, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	httpHandler := handler.NewHandler(svc, logger, checks)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := refreshWorker.Stop(); err != nil {
		logger.Error("failed to stop refresh worker", "error", err)
	}

	cancel()
	logger.Info("server stopped")
}
