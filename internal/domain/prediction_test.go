package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionSubmission_UnmarshalJSON(t *testing.T) {
	var sub PredictionSubmission
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":7,"match_id":1,"score1":0,"score2":0}`), &sub))
	assert.Equal(t, Score{}, sub.Score(), "explicit zeros are a real guess")

	for _, raw := range []string{
		`{"user_id":7,"username":"u","match_id":1}`,
		`{"user_id":7,"match_id":1,"score2":3}`,
		`{"user_id":7,"match_id":1,"score1":1,"score2":null}`,
	} {
		err := json.Unmarshal([]byte(raw), &sub)
		assert.ErrorIs(t, err, ErrMissingGuess, raw)
		assert.True(t, IsValidationError(err))
	}

	err := json.Unmarshal([]byte(`{"user_id":"x","score1":1,"score2":1}`), &sub)
	assert.Error(t, err)
	assert.False(t, IsValidationError(err), "type errors come from the decoder")
}
