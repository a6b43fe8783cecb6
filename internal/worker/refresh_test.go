package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/cache"
	"github.com/airpulse/airpulse/internal/coordinator"
	"github.com/airpulse/airpulse/internal/worker"
)

// fetcherFunc adapts a function to the coordinator.Fetcher interface.
type fetcherFunc func(ctx context.Context, siteID string) (airquality.Observation, error)

func (f fetcherFunc) FetchObservation(ctx context.Context, siteID string) (airquality.Observation, error) {
	return f(ctx, siteID)
}

func successFetcher() fetcherFunc {
	return func(_ context.Context, _ string) (airquality.Observation, error) {
		return airquality.Observation{
			PM25:      4.2,
			AQI:       25,
			Advice:    "Good",
			UpdatedAt: time.Now().UTC(),
		}, nil
	}
}

func failingFetcher(err error) fetcherFunc {
	return func(_ context.Context, _ string) (airquality.Observation, error) {
		return airquality.Observation{}, err
	}
}

// newWorkerRegistry builds a registry of started coordinators, one per
// site ID, all sharing the given fetcher.
func newWorkerRegistry(t *testing.T, fetchers map[string]fetcherFunc) *coordinator.Registry {
	t.Helper()

	registry := coordinator.NewRegistry()
	for siteID, fetcher := range fetchers {
		store := cache.NewStore(filepath.Join(t.TempDir(), "site-"+siteID+".json"))

		c, err := coordinator.New(coordinator.Config{
			Site:     airquality.Site{ID: siteID, Name: "Site " + siteID},
			Fetcher:  fetcher,
			Store:    store,
			Timezone: "UTC",
			Logger:   zerolog.New(io.Discard),
		})
		require.NoError(t, err)
		require.NoError(t, c.Start(context.Background()))
		t.Cleanup(c.Stop)
		require.NoError(t, registry.Register(c))
	}
	return registry
}

func TestDefaultJobConfig(t *testing.T) {
	cfg := worker.DefaultJobConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 730*24*time.Hour, cfg.Retention)
	assert.Equal(t, 24*time.Hour, cfg.PruneInterval)
}

func TestRefreshJob_Run(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"102": successFetcher(),
		"240": successFetcher(),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.TotalSites)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRefreshJob_Run_CollectsFailures(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"102": successFetcher(),
		"240": failingFetcher(airquality.ErrTransport),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.TotalSites)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "240", result.Errors[0].SiteID)
	assert.Contains(t, result.Errors[0].Error, "provider unreachable")
}

func TestRefreshJob_Run_EmptyRegistry(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: coordinator.NewRegistry(),
		Logger:   zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 0, result.TotalSites)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 0, result.Failed)
}

func TestRefreshJob_Run_ContextCancellation(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"102": successFetcher(),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	// Should complete (even if no sites were processed)
	assert.NotNil(t, result)
	assert.Equal(t, 0, result.Successful)
}

func TestRefreshJob_GetMetrics(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"102": successFetcher(),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	_ = job.Run(context.Background())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRuns)
	assert.Equal(t, int64(1), metrics.SuccessfulRefreshes)
	assert.Equal(t, int64(0), metrics.FailedRefreshes)
	assert.NotZero(t, metrics.LastRunAt)
	assert.Greater(t, metrics.LastRunDuration, time.Duration(0))
}

func TestRefreshJob_RefreshSite(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"102": successFetcher(),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	err := job.RefreshSite(context.Background(), "102")
	assert.NoError(t, err)

	c, ok := registry.Get("102")
	require.True(t, ok)
	assert.False(t, c.Observation().IsZero())
}

func TestRefreshJob_RefreshSite_Unknown(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: coordinator.NewRegistry(),
		Logger:   zerolog.Nop(),
	})

	err := job.RefreshSite(context.Background(), "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRefreshJob_RefreshSite_PropagatesFetchError(t *testing.T) {
	registry := newWorkerRegistry(t, map[string]fetcherFunc{
		"240": failingFetcher(airquality.ErrRetriesExhausted),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	err := job.RefreshSite(context.Background(), "240")
	assert.True(t, errors.Is(err, airquality.ErrRetriesExhausted))
}

func TestRefreshMessage_BareSiteID(t *testing.T) {
	var msg worker.RefreshMessage
	err := json.Unmarshal([]byte(`{"site_id": "102"}`), &msg)
	require.NoError(t, err)

	assert.Empty(t, msg.JobType)
	assert.Equal(t, "102", msg.SiteID)
	assert.False(t, msg.RefreshAll)
}

func TestRefreshResult_Fields(t *testing.T) {
	result := &worker.RefreshResult{
		StartTime:  time.Now(),
		TotalSites: 3,
		Successful: 2,
		Failed:     1,
		Errors: []worker.RefreshError{
			{SiteID: "240", Error: "timeout"},
		},
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	assert.Equal(t, 3, result.TotalSites)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "240", result.Errors[0].SiteID)
}
