package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airpulse/airpulse/internal/coordinator"
)

// RefreshJob fans a refresh request out to every registered coordinator.
type RefreshJob struct {
	config   JobConfig
	registry *coordinator.Registry
	logger   zerolog.Logger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns           int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config   JobConfig
	Registry *coordinator.Registry
	Logger   zerolog.Logger
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:   cfg.Config.withDefaults(),
		registry: cfg.Registry,
		logger:   cfg.Logger,
		metrics:  &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalSites int
	Successful int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records a failed site refresh.
type RefreshError struct {
	SiteID string
	Error  string
}

// Run refreshes every registered site with bounded concurrency.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	coordinators := j.registry.All()

	result := &RefreshResult{
		StartTime:  startTime,
		TotalSites: len(coordinators),
	}

	j.logger.Info().
		Int("total_sites", result.TotalSites).
		Int("concurrency", j.config.Concurrency).
		Msg("starting site refresh job")

	// Create work channels
	sitesChan := make(chan *coordinator.Coordinator, len(coordinators))
	resultsChan := make(chan siteResult, len(coordinators))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, sitesChan, resultsChan)
		}()
	}

	// Send sites to workers
	for _, c := range coordinators {
		sitesChan <- c
	}
	close(sitesChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for sr := range resultsChan {
		if sr.err == nil {
			result.Successful++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{
				SiteID: sr.siteID,
				Error:  sr.err.Error(),
			})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("site refresh job completed")

	return result
}

type siteResult struct {
	siteID string
	err    error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, sites <-chan *coordinator.Coordinator, results chan<- siteResult) {
	for c := range sites {
		select {
		case <-ctx.Done():
			return
		default:
			results <- siteResult{
				siteID: c.Site().ID,
				err:    j.refreshSite(ctx, c),
			}
		}
	}
}

func (j *RefreshJob) refreshSite(ctx context.Context, c *coordinator.Coordinator) error {
	siteCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()
	return c.RequestRefresh(siteCtx)
}

// RefreshSite refreshes a single registered site.
func (j *RefreshJob) RefreshSite(ctx context.Context, siteID string) error {
	c, ok := j.registry.Get(siteID)
	if !ok {
		return fmt.Errorf("site %s is not registered", siteID)
	}
	return j.refreshSite(ctx, c)
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRefreshes += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		SuccessfulRefreshes: j.metrics.SuccessfulRefreshes,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		LastRunAt:           j.metrics.LastRunAt,
		LastRunDuration:     j.metrics.LastRunDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}
