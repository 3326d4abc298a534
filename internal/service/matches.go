package service

import (
	"context"
	"fmt"
	"time"

	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/leaderboard"
)

// EnsureUser registers a user on first contact and refreshes their display name afterwards
func (s *Service) EnsureUser(ctx context.Context, id int64, username string) (domain.User, domain.UpsertOutcome, error) {
	user, outcome, err := s.repo.EnsureUser(ctx, domain.User{ID: id, Username: username, CreatedAt: s.now()})
	if err != nil {
		return domain.User{}, "", fmt.Errorf("ensuring user: %w", err)
	}
	return user, outcome, nil
}

// CreateMatch creates a scheduled match
func (s *Service) CreateMatch(ctx context.Context, team1, team2 string, start time.Time) (domain.Match, error) {
	m, err := domain.NewMatch(team1, team2, start, s.now())
	if err != nil {
		return domain.Match{}, err
	}
	created, err := s.repo.CreateMatch(ctx, m)
	if err != nil {
		return domain.Match{}, fmt.Errorf("creating match: %w", err)
	}
	s.logger.Info("match created", "match_id", created.ID, "team1", created.Team1, "team2", created.Team2)
	return created, nil
}

// GetMatch returns a match by id
func (s *Service) GetMatch(ctx context.Context, id int64) (domain.Match, error) {
	return s.repo.GetMatch(ctx, id)
}

// ListMatches returns matches in id order
func (s *Service) ListMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	return s.repo.ListMatches(ctx, filter)
}

// SetLive marks a scheduled match as in progress
func (s *Service) SetLive(ctx context.Context, id int64) (domain.Match, error) {
	now := s.now()
	return s.repo.UpdateMatch(ctx, id, func(m *domain.Match) error {
		return m.SetLive(now)
	})
}

// SetResult records the final score and rebuilds the leaderboard when the
// match actually changed
func (s *Service) SetResult(ctx context.Context, id int64, score domain.Score) (domain.Match, error) {
	if err := score.Validate(); err != nil {
		return domain.Match{}, err
	}

	now := s.now()
	changed := false
	m, err := s.repo.UpdateMatch(ctx, id, func(m *domain.Match) error {
		wasFinished := m.IsFinished()
		if err := m.SetResult(score, now); err != nil {
			return err
		}
		changed = !wasFinished
		return nil
	})
	if err != nil {
		return domain.Match{}, err
	}

	if changed {
		s.logger.Info("match finished", "match_id", m.ID, "score1", score.Home, "score2", score.Away)
		if _, err := s.RefreshLeaderboard(ctx); err != nil {
			s.logger.Warn("failed to refresh leaderboard after result", "match_id", m.ID, "error", err)
		}
	}
	return m, nil
}

// SettleMatch lists what every predictor earned on a finished match
func (s *Service) SettleMatch(ctx context.Context, id int64) ([]domain.Award, error) {
	m, err := s.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsFinished() {
		return nil, domain.ErrMatchNotFinished
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return leaderboard.Settle(snap, m, snap.Rule, s.classify), nil
}
