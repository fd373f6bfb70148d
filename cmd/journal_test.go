package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/model"
)

func TestBuildQuery(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q, err := buildQuery(journalFlags{kind: "ride_completed", taxi: 3, limit: 10, since: time.Hour}, now)
	require.NoError(t, err)
	assert.Equal(t, model.EventRideCompleted, q.Kind)
	assert.Equal(t, 3, q.TaxiID)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, now.Add(-time.Hour), q.Start)

	q, err = buildQuery(journalFlags{}, now)
	require.NoError(t, err)
	assert.True(t, q.Start.IsZero())
	assert.Zero(t, q.Kind)
}

func TestBuildQueryUnknownKind(t *testing.T) {
	_, err := buildQuery(journalFlags{kind: "teleported"}, time.Now())
	assert.Error(t, err)
}
