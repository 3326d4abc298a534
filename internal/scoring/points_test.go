package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footballistika/predictor/internal/domain"
)

func score(h, a int) domain.Score {
	return domain.Score{Home: h, Away: a}
}

func TestPoints_ExactAlwaysWins(t *testing.T) {
	rule := domain.DefaultPointsRule()
	for h := 0; h <= 5; h++ {
		for a := 0; a <= 5; a++ {
			for _, c := range []Classifier{SameOutcome, SameGoalDifference, SameOutcomeOrGoalDifference} {
				assert.Equal(t, rule.Exact, Points(score(h, a), score(h, a), rule, c))
			}
		}
	}
}

func TestPoints_SameOutcome(t *testing.T) {
	rule := domain.PointsRule{Exact: 3, Result: 2}
	for h := 0; h <= 5; h++ {
		for a := 0; a <= 5; a++ {
			for ph := 0; ph <= 5; ph++ {
				for pa := 0; pa <= 5; pa++ {
					predicted, actual := score(ph, pa), score(h, a)
					got := Points(predicted, actual, rule, SameOutcome)
					switch {
					case predicted == actual:
						assert.Equal(t, 3, got)
					case predicted.Outcome() == actual.Outcome():
						assert.Equal(t, 2, got, "predicted %v actual %v", predicted, actual)
					default:
						assert.Equal(t, 0, got, "predicted %v actual %v", predicted, actual)
					}
				}
			}
		}
	}
}

func TestPoints_Scenario(t *testing.T) {
	rule := domain.DefaultPointsRule()
	actual := score(2, 1)

	assert.Equal(t, 5, Points(score(2, 1), actual, rule, SameOutcome))
	assert.Equal(t, 1, Points(score(1, 0), actual, rule, SameOutcome))
	assert.Equal(t, 0, Points(score(0, 2), actual, rule, SameOutcome))
	assert.Equal(t, 0, Points(score(1, 1), actual, rule, SameOutcome))
}

func TestPoints_GoalDifferenceIsStricter(t *testing.T) {
	rule := domain.DefaultPointsRule()

	assert.Equal(t, 1, Points(score(1, 0), score(2, 1), rule, SameGoalDifference))
	assert.Equal(t, 0, Points(score(3, 0), score(2, 1), rule, SameGoalDifference))
	assert.Equal(t, 1, Points(score(3, 0), score(2, 1), rule, SameOutcomeOrGoalDifference))
	assert.Equal(t, 1, Points(score(0, 0), score(2, 2), rule, SameGoalDifference))
}

func TestPoints_NilClassifierDefaultsToOutcome(t *testing.T) {
	assert.Equal(t, KindResult, Classify(score(3, 0), score(1, 0), nil))
}

func TestParseClassifier(t *testing.T) {
	for _, name := range []string{"", ClassifierOutcome, ClassifierGoalDifference, ClassifierOutcomeOrGoalDifference} {
		c, err := ParseClassifier(name)
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}

	_, err := ParseClassifier("closest")
	assert.True(t, domain.IsValidationError(err))
}
