package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/domain"
)

// Refresher rebuilds the leaderboard projection
type Refresher interface {
	RefreshLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	WarmCache(ctx context.Context) error
}

// RefreshWorker periodically rebuilds the leaderboard projection so that
// out-of-band writes (imports, manual SQL) become visible
type RefreshWorker struct {
	refresher Refresher
	config    *config.RefreshConfig
	logger    *slog.Logger
	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(refresher Refresher, cfg *config.RefreshConfig, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		config:    cfg,
		logger:    logger,
	}
}

// Start warms the cache when configured and schedules the periodic refresh.
// ctx bounds every refresh run.
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return nil
	}

	if w.config.WarmOnStart {
		if err := w.refresher.WarmCache(ctx); err != nil {
			w.logger.Warn("failed to warm leaderboard cache", "error", err)
		}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(w.config.Interval),
		gocron.NewTask(w.refresh, ctx),
		gocron.WithName("leaderboard-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	scheduler.Start()
	w.scheduler = scheduler

	w.logger.Info("refresh worker started", "interval", w.config.Interval)
	return nil
}

// Stop stops the schedule and waits for a running refresh to finish
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler == nil {
		return nil
	}

	err := w.scheduler.Shutdown()
	w.scheduler = nil
	w.logger.Info("refresh worker stopped")
	return err
}

// IsRunning returns whether the worker is currently scheduled
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scheduler != nil
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *RefreshWorker) RunOnce(ctx context.Context) error {
	startTime := time.Now()
	entries, err := w.refresher.RefreshLeaderboard(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("refresh cycle completed",
		"duration", time.Since(startTime),
		"users", len(entries),
	)
	return nil
}

func (w *RefreshWorker) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("refresh cycle failed", "error", err)
	}
}
