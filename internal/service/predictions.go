package service

import (
	"context"
	"fmt"
	"time"

	"github.com/footballistika/predictor/internal/domain"
)

// SubmitPrediction creates or replaces a user's prediction for a match.
// Checks run in order: match exists, deadline, score, user. The deadline is
// checked again against the locked row so a result recorded meanwhile wins.
func (s *Service) SubmitPrediction(ctx context.Context, sub domain.PredictionSubmission, now time.Time) (domain.Prediction, domain.UpsertOutcome, error) {
	if err := domain.ValidateUserID(sub.UserID); err != nil {
		return domain.Prediction{}, "", err
	}

	match, err := s.repo.GetMatch(ctx, sub.MatchID)
	if err != nil {
		return domain.Prediction{}, "", err
	}
	if err := s.gate.Check(match, now); err != nil {
		return domain.Prediction{}, "", err
	}

	score := sub.Score()
	if err := score.Validate(); err != nil {
		return domain.Prediction{}, "", err
	}

	if sub.Username != "" {
		if _, _, err := s.repo.EnsureUser(ctx, domain.User{ID: sub.UserID, Username: sub.Username, CreatedAt: now}); err != nil {
			return domain.Prediction{}, "", fmt.Errorf("ensuring user: %w", err)
		}
	}

	p := domain.Prediction{UserID: sub.UserID, MatchID: sub.MatchID, Score: score, CreatedAt: now}
	saved, outcome, err := s.repo.UpsertPrediction(ctx, p, func(m domain.Match, existing *domain.Prediction) (bool, error) {
		if err := s.gate.Check(m, now); err != nil {
			return false, err
		}
		return existing == nil || existing.Score != score, nil
	})
	if err != nil {
		return domain.Prediction{}, "", err
	}

	s.logger.Debug("prediction stored",
		"user_id", saved.UserID,
		"match_id", saved.MatchID,
		"outcome", outcome,
	)
	return saved, outcome, nil
}

// BatchResult tallies a batch submission
type BatchResult struct {
	Stored   int `json:"stored"`
	Rejected int `json:"rejected"`
}

// SubmitPredictionBatch submits each prediction independently. One bad
// submission never blocks the rest; only context cancellation aborts the batch.
func (s *Service) SubmitPredictionBatch(ctx context.Context, batch []domain.PredictionSubmission, now time.Time) (BatchResult, error) {
	var res BatchResult
	for _, sub := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, _, err := s.SubmitPrediction(ctx, sub, now); err != nil {
			s.logger.Warn("failed to submit prediction in batch",
				"user_id", sub.UserID,
				"match_id", sub.MatchID,
				"error", err,
			)
			res.Rejected++
			continue
		}
		res.Stored++
	}
	return res, nil
}

// PredictionsForUser lists a user's predictions in match order
func (s *Service) PredictionsForUser(ctx context.Context, userID int64) ([]domain.Prediction, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.repo.ListPredictions(ctx, domain.PredictionFilter{UserID: userID})
}

// PredictionsForMatch lists a match's predictions in user order
func (s *Service) PredictionsForMatch(ctx context.Context, matchID int64) ([]domain.Prediction, error) {
	if _, err := s.repo.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	return s.repo.ListPredictions(ctx, domain.PredictionFilter{MatchID: matchID})
}

// AdmissibleMatches lists the matches userID may still predict at now, each
// with their current prediction if they made one
func (s *Service) AdmissibleMatches(ctx context.Context, userID int64, now time.Time) ([]domain.AdmissibleMatch, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	matches, err := s.repo.ListMatches(ctx, domain.MatchFilter{
		Statuses: []domain.MatchStatus{domain.MatchStatusScheduled, domain.MatchStatusLive},
	})
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	preds, err := s.repo.ListPredictions(ctx, domain.PredictionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	byMatch := make(map[int64]domain.Prediction, len(preds))
	for _, p := range preds {
		byMatch[p.MatchID] = p
	}

	out := make([]domain.AdmissibleMatch, 0, len(matches))
	for _, m := range matches {
		if !s.gate.IsAdmissible(m, now) {
			continue
		}
		am := domain.AdmissibleMatch{Match: m, Deadline: s.gate.Deadline(m, now)}
		if p, ok := byMatch[m.ID]; ok {
			am.Prediction = &p
		}
		out = append(out, am)
	}
	return out, nil
}
