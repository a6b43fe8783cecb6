package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/history"
)

func observationAt(updatedAt time.Time, pm25 float64) airquality.Observation {
	return airquality.Observation{
		PM25:      pm25,
		AQI:       airquality.PM25Index(pm25),
		Advice:    "Good",
		UpdatedAt: updatedAt,
	}
}

func seedRepository(t *testing.T) *history.InMemoryRepository {
	t.Helper()
	repo := history.NewInMemoryRepository()
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, "102", observationAt(base, 4.2)))
	require.NoError(t, repo.Insert(ctx, "102", observationAt(base.Add(30*time.Minute), 5.83)))
	require.NoError(t, repo.Insert(ctx, "102", observationAt(base.Add(time.Hour), 7.1)))
	require.NoError(t, repo.Insert(ctx, "240", observationAt(base.Add(time.Hour), 12.4)))
	return repo
}

func TestInMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := seedRepository(t)

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 7.1, entries[0].Observation.PM25)
	assert.Equal(t, 5.83, entries[1].Observation.PM25)
	assert.Equal(t, 4.2, entries[2].Observation.PM25)
	for _, e := range entries {
		assert.Equal(t, "102", e.SiteID)
		assert.Equal(t, e.Observation.UpdatedAt, e.RecordedAt)
	}
}

func TestInMemoryRepository_ListFiltersByWindow(t *testing.T) {
	repo := seedRepository(t)

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{
		From: time.Date(2024, 1, 15, 0, 15, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 15, 0, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5.83, entries[0].Observation.PM25)
}

func TestInMemoryRepository_ListWindowBoundsInclusive(t *testing.T) {
	repo := seedRepository(t)

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{
		From: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestInMemoryRepository_ListRespectsLimit(t *testing.T) {
	repo := seedRepository(t)

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 7.1, entries[0].Observation.PM25)
}

func TestInMemoryRepository_ListUnknownSite(t *testing.T) {
	repo := seedRepository(t)

	entries, err := repo.List(context.Background(), "999", history.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInMemoryRepository_InsertStampsZeroTime(t *testing.T) {
	repo := history.NewInMemoryRepository()
	require.NoError(t, repo.Insert(context.Background(), "102", airquality.Observation{PM25: 3.0}))

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestInMemoryRepository_Prune(t *testing.T) {
	repo := seedRepository(t)

	removed, err := repo.Prune(context.Background(), time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	entries, err := repo.List(context.Background(), "102", history.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7.1, entries[0].Observation.PM25)

	// The other site's entry at exactly the cutoff survives.
	entries, err = repo.List(context.Background(), "240", history.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
