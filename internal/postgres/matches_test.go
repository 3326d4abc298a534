package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footballistika/predictor/internal/domain"
)

// fakeRow replays fixed column values into Scan destinations
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("want %d columns, got %d", len(r), len(dest))
	}
	for i, v := range r {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case **string:
			*d, _ = v.(*string)
		case **int:
			*d, _ = v.(*int)
		case **time.Time:
			*d, _ = v.(*time.Time)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanMatch_NullableColumns(t *testing.T) {
	now := time.Date(2024, 6, 14, 19, 0, 0, 0, time.UTC)

	m, err := scanMatch(fakeRow{int64(3), (*string)(nil), "Spain", "Croatia", (*int)(nil), (*int)(nil), "scheduled", (*time.Time)(nil), now})
	require.NoError(t, err)
	assert.Empty(t, m.ExternalID)
	assert.Nil(t, m.Score)
	assert.True(t, m.StartTime.IsZero())
	assert.Equal(t, domain.MatchStatusScheduled, m.Status)

	ext, h, a := "euro-3", 3, 0
	m, err = scanMatch(fakeRow{int64(3), &ext, "Spain", "Croatia", &h, &a, "finished", &now, now})
	require.NoError(t, err)
	assert.Equal(t, "euro-3", m.ExternalID)
	require.NotNil(t, m.Score)
	assert.Equal(t, domain.Score{Home: 3, Away: 0}, *m.Score)
	assert.Equal(t, now, m.StartTime)
}

func TestMatchParams(t *testing.T) {
	externalID, s1, s2, start := matchParams(domain.Match{})
	assert.Nil(t, externalID)
	assert.Nil(t, s1)
	assert.Nil(t, s2)
	assert.Nil(t, start)

	now := time.Now()
	externalID, s1, s2, start = matchParams(domain.Match{
		ExternalID: "x", Score: &domain.Score{Home: 1, Away: 2}, StartTime: now,
	})
	assert.Equal(t, "x", *externalID)
	assert.Equal(t, 1, *s1)
	assert.Equal(t, 2, *s2)
	assert.Equal(t, now, *start)
}

func TestMapMatchWriteError(t *testing.T) {
	err := mapMatchWriteError(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: uniqueViolation}))
	assert.ErrorIs(t, err, domain.ErrDuplicateMatch)
	assert.True(t, domain.IsValidationError(err))

	other := errors.New("connection reset")
	assert.Equal(t, other, mapMatchWriteError(other))
}
