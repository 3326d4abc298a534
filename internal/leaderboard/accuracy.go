package leaderboard

import (
	"sort"

	"github.com/footballistika/predictor/internal/domain"
)

// ResultAccuracies computes, per user, the percentage of finished-match
// predictions whose outcome (home win, draw, away win) was right.
func ResultAccuracies(snap domain.Snapshot) []domain.ResultAccuracy {
	scores := finishedScores(snap)

	byUser := make(map[int64]*domain.ResultAccuracy)
	for _, p := range snap.Predictions {
		actual, ok := scores[p.MatchID]
		if !ok {
			continue
		}
		row, ok := byUser[p.UserID]
		if !ok {
			row = &domain.ResultAccuracy{UserID: p.UserID, Username: snap.Username(p.UserID)}
			byUser[p.UserID] = row
		}
		row.Predictions++
		if p.Score.Outcome() == actual.Outcome() {
			row.Correct++
		}
	}

	rows := make([]domain.ResultAccuracy, 0, len(byUser))
	for _, row := range byUser {
		row.AccuracyPercent = float64(row.Correct) / float64(row.Predictions) * 100
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AccuracyPercent != rows[j].AccuracyPercent {
			return rows[i].AccuracyPercent > rows[j].AccuracyPercent
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// sideAccuracy is 1 for an exact goal count and falls linearly with the
// relative error, floored at 0.
func sideAccuracy(actual, predicted int) float64 {
	if actual == predicted {
		return 1
	}
	denominator := max(actual, predicted)
	if denominator == 0 {
		return 1
	}
	diff := actual - predicted
	if diff < 0 {
		diff = -diff
	}
	return max(0, 1-float64(diff)/float64(denominator))
}

// GoalAccuracy returns how close predicted was to actual, as a percentage
func GoalAccuracy(predicted, actual domain.Score) float64 {
	return (sideAccuracy(actual.Home, predicted.Home) + sideAccuracy(actual.Away, predicted.Away)) / 2 * 100
}

// GoalAccuracies averages GoalAccuracy per user over finished matches
func GoalAccuracies(snap domain.Snapshot) []domain.GoalAccuracy {
	scores := finishedScores(snap)

	type acc struct {
		row domain.GoalAccuracy
		sum float64
	}
	byUser := make(map[int64]*acc)
	for _, p := range snap.Predictions {
		actual, ok := scores[p.MatchID]
		if !ok {
			continue
		}
		a, ok := byUser[p.UserID]
		if !ok {
			a = &acc{row: domain.GoalAccuracy{UserID: p.UserID, Username: snap.Username(p.UserID)}}
			byUser[p.UserID] = a
		}
		a.row.Predictions++
		a.sum += GoalAccuracy(p.Score, actual)
	}

	rows := make([]domain.GoalAccuracy, 0, len(byUser))
	for _, a := range byUser {
		a.row.AccuracyPercent = a.sum / float64(a.row.Predictions)
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AccuracyPercent != rows[j].AccuracyPercent {
			return rows[i].AccuracyPercent > rows[j].AccuracyPercent
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// Averages returns the mean predicted score per match that has predictions,
// ordered by match id. Finished matches are skipped unless includeFinished.
func Averages(snap domain.Snapshot, includeFinished bool) []domain.MatchAverage {
	type sum struct {
		home, away, n int
	}
	sums := make(map[int64]*sum)
	for _, p := range snap.Predictions {
		s, ok := sums[p.MatchID]
		if !ok {
			s = &sum{}
			sums[p.MatchID] = s
		}
		s.home += p.Score.Home
		s.away += p.Score.Away
		s.n++
	}

	var rows []domain.MatchAverage
	for _, m := range snap.Matches {
		s, ok := sums[m.ID]
		if !ok || (m.IsFinished() && !includeFinished) {
			continue
		}
		rows = append(rows, domain.MatchAverage{
			Match:       m,
			AvgHome:     float64(s.home) / float64(s.n),
			AvgAway:     float64(s.away) / float64(s.n),
			Predictions: s.n,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Match.ID < rows[j].Match.ID })
	return rows
}
