package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/airpulse/airpulse/internal/history"
)

// MaintenanceJob prunes expired entries from the observation archive.
type MaintenanceJob struct {
	history   history.Repository
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
}

// MaintenanceJobConfig holds configuration for creating a MaintenanceJob.
type MaintenanceJobConfig struct {
	Config  JobConfig
	History history.Repository
	Logger  zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job.
func NewMaintenanceJob(cfg MaintenanceJobConfig) *MaintenanceJob {
	config := cfg.Config.withDefaults()
	return &MaintenanceJob{
		history:   cfg.History,
		retention: config.Retention,
		interval:  config.PruneInterval,
		logger:    cfg.Logger,
	}
}

// Run prunes entries older than the retention window once.
func (j *MaintenanceJob) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.retention)

	removed, err := j.history.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("history prune failed")
		return 0, err
	}

	j.logger.Info().
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Msg("history prune completed")

	return removed, nil
}

// Start runs the prune once immediately and then on every interval tick
// until the context is cancelled. Failures are logged and retried on the
// next tick.
func (j *MaintenanceJob) Start(ctx context.Context) {
	_, _ = j.Run(ctx) //nolint:errcheck // logged in Run

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.Run(ctx) //nolint:errcheck // logged in Run
		}
	}
}
