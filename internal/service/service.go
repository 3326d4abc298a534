package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/deadline"
	"github.com/footballistika/predictor/internal/scoring"
)

// Service provides business logic for matches, predictions and the leaderboard
type Service struct {
	repo     Repository
	cache    LeaderboardCache
	gate     *deadline.Gate
	classify scoring.Classifier
	config   *config.LeaderboardConfig
	logger   *slog.Logger
	now      func() time.Time

	// refreshMu orders snapshot, compute and replace across refreshes
	refreshMu sync.Mutex
}

// Option customises a Service
type Option func(*Service)

// WithCache serves leaderboard reads from cache and keeps it in step with refreshes
func WithCache(cache LeaderboardCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithClock overrides the clock used for updated_at stamps and refresh times
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new service
func New(
	repo Repository,
	gate *deadline.Gate,
	classify scoring.Classifier,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if classify == nil {
		classify = scoring.SameOutcome
	}
	s := &Service{
		repo:     repo,
		gate:     gate,
		classify: classify,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gate returns the deadline gate predictions are checked against
func (s *Service) Gate() *deadline.Gate {
	return s.gate
}

func (s *Service) clampLimit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}
