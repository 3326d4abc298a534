// Package leaderboard derives rankings and accuracy tables from a snapshot of
// matches and predictions. Everything here is a pure function of its inputs.
package leaderboard

import (
	"sort"

	"github.com/footballistika/predictor/internal/domain"
	"github.com/footballistika/predictor/internal/scoring"
)

// finishedScores indexes the final score of every finished match
func finishedScores(snap domain.Snapshot) map[int64]domain.Score {
	scores := make(map[int64]domain.Score, len(snap.Matches))
	for _, m := range snap.Matches {
		if m.IsFinished() && m.Score != nil {
			scores[m.ID] = *m.Score
		}
	}
	return scores
}

// Compute ranks every user with at least one prediction on a finished match.
// Order: points desc, exact count desc, earliest first prediction, user id asc.
func Compute(snap domain.Snapshot, rule domain.PointsRule, classify scoring.Classifier) []domain.LeaderboardEntry {
	scores := finishedScores(snap)

	byUser := make(map[int64]*domain.LeaderboardEntry)
	for _, p := range snap.Predictions {
		actual, ok := scores[p.MatchID]
		if !ok {
			continue
		}

		e, ok := byUser[p.UserID]
		if !ok {
			e = &domain.LeaderboardEntry{
				UserID:            p.UserID,
				Username:          snap.Username(p.UserID),
				FirstPredictionAt: p.CreatedAt,
			}
			byUser[p.UserID] = e
		}
		if p.CreatedAt.Before(e.FirstPredictionAt) {
			e.FirstPredictionAt = p.CreatedAt
		}

		e.PredictionCount++
		switch scoring.Classify(p.Score, actual, classify) {
		case scoring.KindExact:
			e.ExactCount++
			e.Points += int64(rule.Exact)
		case scoring.KindResult:
			e.ResultCount++
			e.Points += int64(rule.Result)
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.ExactCount != b.ExactCount {
			return a.ExactCount > b.ExactCount
		}
		if !a.FirstPredictionAt.Equal(b.FirstPredictionAt) {
			return a.FirstPredictionAt.Before(b.FirstPredictionAt)
		}
		return a.UserID < b.UserID
	})

	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

// TopWithUser cuts the first limit entries and finds userID's own row
func TopWithUser(entries []domain.LeaderboardEntry, userID int64, limit int) ([]domain.LeaderboardEntry, *domain.LeaderboardEntry) {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	top := entries[:limit]

	var own *domain.LeaderboardEntry
	if userID != 0 {
		for i := range entries {
			if entries[i].UserID == userID {
				e := entries[i]
				own = &e
				break
			}
		}
	}
	return top, own
}

// Settle lists the points every predictor earned on one finished match, best first
func Settle(snap domain.Snapshot, match domain.Match, rule domain.PointsRule, classify scoring.Classifier) []domain.Award {
	if !match.IsFinished() || match.Score == nil {
		return nil
	}

	var awards []domain.Award
	for _, p := range snap.Predictions {
		if p.MatchID != match.ID {
			continue
		}
		awards = append(awards, domain.Award{
			UserID:   p.UserID,
			Username: snap.Username(p.UserID),
			Points:   scoring.Points(p.Score, *match.Score, rule, classify),
		})
	}

	sort.Slice(awards, func(i, j int) bool {
		if awards[i].Points != awards[j].Points {
			return awards[i].Points > awards[j].Points
		}
		return awards[i].UserID < awards[j].UserID
	})
	return awards
}
