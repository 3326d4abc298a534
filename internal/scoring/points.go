// Package scoring turns a predicted and an actual score into points.
package scoring

import (
	"github.com/footballistika/predictor/internal/domain"
)

// Classifier decides whether a non-exact prediction still earns the result reward
type Classifier func(predicted, actual domain.Score) bool

// Classifier names accepted in configuration
const (
	ClassifierOutcome                 = "outcome"
	ClassifierGoalDifference          = "goal_difference"
	ClassifierOutcomeOrGoalDifference = "outcome_or_goal_difference"
)

// SameOutcome matches home win, draw and away win
func SameOutcome(predicted, actual domain.Score) bool {
	return predicted.Outcome() == actual.Outcome()
}

// SameGoalDifference matches only when the margin is identical
func SameGoalDifference(predicted, actual domain.Score) bool {
	return predicted.Diff() == actual.Diff()
}

// SameOutcomeOrGoalDifference accepts either condition
func SameOutcomeOrGoalDifference(predicted, actual domain.Score) bool {
	return SameGoalDifference(predicted, actual) || SameOutcome(predicted, actual)
}

// ParseClassifier resolves a configured classifier name. An empty name selects SameOutcome.
func ParseClassifier(name string) (Classifier, error) {
	switch name {
	case "", ClassifierOutcome:
		return SameOutcome, nil
	case ClassifierGoalDifference:
		return SameGoalDifference, nil
	case ClassifierOutcomeOrGoalDifference:
		return SameOutcomeOrGoalDifference, nil
	}
	return nil, domain.ErrUnknownClassify
}

// Kind is the reward category a prediction falls into
type Kind int

const (
	KindMiss Kind = iota
	KindResult
	KindExact
)

// Classify returns the reward category for a prediction
func Classify(predicted, actual domain.Score, classify Classifier) Kind {
	if predicted == actual {
		return KindExact
	}
	if classify == nil {
		classify = SameOutcome
	}
	if classify(predicted, actual) {
		return KindResult
	}
	return KindMiss
}

// Points returns the reward for predicted given the final score actual
func Points(predicted, actual domain.Score, rule domain.PointsRule, classify Classifier) int {
	switch Classify(predicted, actual, classify) {
	case KindExact:
		return rule.Exact
	case KindResult:
		return rule.Result
	}
	return 0
}
