package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/leaderboard"
)

// RefreshLeaderboard rebuilds the projection from a consistent snapshot and
// replaces both the stored copy and the cache. A cache failure is logged; the
// stored projection stays authoritative. Refreshes run one at a time, and the
// refresh time is taken before the snapshot so a slow refresh elsewhere cannot
// replace a board built from later data.
func (s *Service) RefreshLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	refreshedAt := s.now()
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	entries := leaderboard.Compute(snap, snap.Rule, s.classify)

	if err := s.repo.ReplaceLeaderboard(ctx, entries, refreshedAt); err != nil {
		if !errors.Is(err, domain.ErrStaleLeaderboard) {
			return nil, fmt.Errorf("storing leaderboard: %w", err)
		}
		s.logger.Info("newer leaderboard already stored, keeping it", "refreshed_at", refreshedAt)
		stored, _, err := s.repo.LeaderboardEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading leaderboard: %w", err)
		}
		return stored, nil
	}
	if s.cache != nil {
		if err := s.cache.ReplaceLeaderboard(ctx, entries, refreshedAt); err != nil {
			s.logger.Warn("failed to replace cached leaderboard", "error", err)
		}
	}

	s.logger.Info("leaderboard refreshed", "users", len(entries), "rule_exact", snap.Rule.Exact, "rule_result", snap.Rule.Result)
	return entries, nil
}

// WarmCache copies the stored projection into the cache, building it first if
// it has never been computed
func (s *Service) WarmCache(ctx context.Context) error {
	entries, refreshedAt, err := s.repo.LeaderboardEntries(ctx)
	if err != nil {
		return fmt.Errorf("loading leaderboard: %w", err)
	}
	if refreshedAt.IsZero() {
		_, err := s.RefreshLeaderboard(ctx)
		return err
	}
	if s.cache == nil {
		return nil
	}
	err = s.cache.ReplaceLeaderboard(ctx, entries, refreshedAt)
	if err != nil && !errors.Is(err, domain.ErrStaleLeaderboard) {
		return fmt.Errorf("warming cache: %w", err)
	}
	return nil
}

// Leaderboard returns the top limit entries and userID's own entry. Reads go
// to the cache first and fall back to the stored projection.
func (s *Service) Leaderboard(ctx context.Context, limit int, userID int64) (domain.LeaderboardView, error) {
	limit = s.clampLimit(limit)

	if s.cache != nil {
		view, err := s.cache.View(ctx, limit, userID)
		if err == nil {
			return view, nil
		}
		s.logger.Warn("leaderboard cache read failed, using stored projection", "error", err)
	}

	entries, refreshedAt, err := s.repo.LeaderboardEntries(ctx)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("loading leaderboard: %w", err)
	}
	top, own := leaderboard.TopWithUser(entries, userID, limit)
	return domain.LeaderboardView{
		Top:         top,
		User:        own,
		TotalUsers:  int64(len(entries)),
		RefreshedAt: refreshedAt,
	}, nil
}

// PointsRule returns the active reward values
func (s *Service) PointsRule(ctx context.Context) (domain.PointsRule, error) {
	return s.repo.GetPointsRule(ctx)
}

// UpdatePointsRule replaces the reward values and rebuilds the leaderboard under them
func (s *Service) UpdatePointsRule(ctx context.Context, exact, result int) (domain.PointsRule, error) {
	rule := domain.PointsRule{Exact: exact, Result: result, UpdatedAt: s.now()}
	if err := rule.Validate(); err != nil {
		return domain.PointsRule{}, err
	}
	saved, err := s.repo.SavePointsRule(ctx, rule)
	if err != nil {
		return domain.PointsRule{}, fmt.Errorf("saving points rule: %w", err)
	}

	s.logger.Info("points rule updated", "exact", saved.Exact, "result", saved.Result)
	if _, err := s.RefreshLeaderboard(ctx); err != nil {
		s.logger.Warn("failed to refresh leaderboard after rule change", "error", err)
	}
	return saved, nil
}

// ResultAccuracy ranks users by the share of correct outcomes
func (s *Service) ResultAccuracy(ctx context.Context) ([]domain.ResultAccuracy, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return leaderboard.ResultAccuracies(snap), nil
}

// GoalAccuracy ranks users by how close their goal counts were
func (s *Service) GoalAccuracy(ctx context.Context) ([]domain.GoalAccuracy, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return leaderboard.GoalAccuracies(snap), nil
}

// Averages returns the mean predicted score per match
func (s *Service) Averages(ctx context.Context, includeFinished bool) ([]domain.MatchAverage, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return leaderboard.Averages(snap, includeFinished), nil
}

// UserStanding summarises one user's predictions and leaderboard position
func (s *Service) UserStanding(ctx context.Context, userID int64) (domain.UserStanding, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.UserStanding{}, err
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return domain.UserStanding{}, err
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.UserStanding{}, fmt.Errorf("reading snapshot: %w", err)
	}

	standing := domain.UserStanding{UserID: userID}
	for _, p := range snap.Predictions {
		if p.UserID == userID {
			standing.Predictions++
		}
	}
	for _, r := range leaderboard.ResultAccuracies(snap) {
		if r.UserID == userID {
			standing.ResultAccuracyPercent = r.AccuracyPercent
			break
		}
	}
	for _, g := range leaderboard.GoalAccuracies(snap) {
		if g.UserID == userID {
			standing.GoalAccuracyPercent = g.AccuracyPercent
			break
		}
	}

	view, err := s.Leaderboard(ctx, 1, userID)
	if err != nil {
		return domain.UserStanding{}, err
	}
	if view.User != nil {
		standing.Place = view.User.Rank
		standing.Points = view.User.Points
	}
	return standing, nil
}

// LastRefresh reports when the stored projection was last rebuilt
func (s *Service) LastRefresh(ctx context.Context) (time.Time, error) {
	_, refreshedAt, err := s.repo.LeaderboardEntries(ctx)
	return refreshedAt, err
}
