package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "rider index violation",
			err:      &pq.Error{Code: uniqueViolation, Constraint: constraintActiveRider},
			expected: trip.ErrRiderHasActiveTrip,
		},
		{
			name:     "driver index violation",
			err:      &pq.Error{Code: uniqueViolation, Constraint: constraintActiveDriver},
			expected: trip.ErrDriverHasActiveTrip,
		},
		{
			name:     "primary key violation",
			err:      &pq.Error{Code: uniqueViolation, Constraint: "trips_pkey"},
			expected: trip.ErrVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapWriteError(tt.err), tt.expected)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapWriteError(other))

	fk := &pq.Error{Code: "23503"}
	assert.Equal(t, error(fk), mapWriteError(fk))
}

func TestGet_MalformedIDIsNotFound(t *testing.T) {
	repo := NewTripRepository(nil)

	_, err := repo.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestSchema_DeclaresPartialUniqueIndexes(t *testing.T) {
	joined := strings.Join(schema, "\n")

	assert.Contains(t, joined, "CREATE UNIQUE INDEX IF NOT EXISTS "+constraintActiveRider)
	assert.Contains(t, joined, "CREATE UNIQUE INDEX IF NOT EXISTS "+constraintActiveDriver)
	assert.Contains(t, joined, "user_presence")
}

func TestNullable(t *testing.T) {
	assert.False(t, nullable("").Valid)
	assert.True(t, nullable("driver-1").Valid)
}
