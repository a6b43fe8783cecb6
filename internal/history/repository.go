package history

import (
	"context"
	"time"

	"github.com/airpulse/airpulse/internal/airquality"
)

// DefaultQueryLimit bounds List results when no limit is given.
const DefaultQueryLimit = 500

// QueryOptions narrow a history listing. Zero From means the beginning
// of time, zero To means now.
type QueryOptions struct {
	From  time.Time
	To    time.Time
	Limit int
}

// window resolves the zero values of a QueryOptions into concrete
// bounds shared by all repository implementations.
func (o QueryOptions) window() (from, to time.Time, limit int) {
	from = o.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to = o.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	limit = o.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return from, to, limit
}

// Repository defines the interface for observation archival.
type Repository interface {
	// Insert archives an observation for a site.
	Insert(ctx context.Context, siteID string, obs airquality.Observation) error

	// List returns archived entries for a site, newest first.
	List(ctx context.Context, siteID string, opts QueryOptions) ([]Entry, error)

	// Prune deletes entries recorded before the given time and returns
	// how many were removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
