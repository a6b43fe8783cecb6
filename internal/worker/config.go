// Package worker provides background job processing for AirPulse.
package worker

import (
	"time"

	"github.com/airpulse/airpulse/internal/history"
)

// JobConfig holds configuration for the background jobs.
type JobConfig struct {
	// Concurrency is the number of concurrent site refreshes.
	// Default: 3
	Concurrency int

	// Timeout bounds each site refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// Retention is how long archived observations are kept.
	// Default: history.DefaultRetention (two years)
	Retention time.Duration

	// PruneInterval is how often expired history entries are pruned.
	// Default: 24 hours
	PruneInterval time.Duration
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Concurrency:   3,
		Timeout:       30 * time.Second,
		Retention:     history.DefaultRetention,
		PruneInterval: 24 * time.Hour,
	}
}

// withDefaults fills unset fields from DefaultJobConfig.
func (c JobConfig) withDefaults() JobConfig {
	def := DefaultJobConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = def.PruneInterval
	}
	return c
}
