package secondary

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPointIDDeterministic(t *testing.T) {
	id1, orig1 := pointID("chunk-123")
	id2, orig2 := pointID("chunk-123")
	require.Equal(t, id1, id2)
	require.Equal(t, "chunk-123", orig1)
	require.Equal(t, "chunk-123", orig2)
	_, err := uuid.Parse(id1)
	require.NoError(t, err)

	realUUID := uuid.New().String()
	id3, orig3 := pointID(realUUID)
	require.Equal(t, realUUID, id3)
	require.Empty(t, orig3)
}

func TestDistanceOf(t *testing.T) {
	require.NotZero(t, distanceOf(MetricCosine))
	require.NotEqual(t, distanceOf(MetricCosine), distanceOf(MetricL2))
}

func TestApplyRecency(t *testing.T) {
	now := time.Now()
	hits := []Hit{
		{ID: "a", Score: 1.0, CreateAt: now.AddDate(0, 0, -1)},
		{ID: "b", Score: 1.0, CreateAt: now.AddDate(0, 0, -60)},
		{ID: "c", Score: 1.0}, // no timestamp, untouched
	}
	applyRecency(hits, RecencyOptions{Boost: 0.5, HalfLifeDays: 30, Now: now})
	require.Greater(t, hits[0].Score, hits[1].Score, "fresher hit should score higher after decay boost")
	require.Equal(t, 1.0, hits[2].Score)
}
