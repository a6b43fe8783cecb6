package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/airpulse/airpulse/internal/airquality"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and for running without a database.
type InMemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	entries []Entry
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Insert archives an observation for a site.
func (r *InMemoryRepository) Insert(_ context.Context, siteID string, obs airquality.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recordedAt := obs.UpdatedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	r.nextID++
	r.entries = append(r.entries, Entry{
		ID:          r.nextID,
		SiteID:      siteID,
		Observation: obs,
		RecordedAt:  recordedAt,
	})
	return nil
}

// List returns archived entries for a site, newest first.
func (r *InMemoryRepository) List(_ context.Context, siteID string, opts QueryOptions) ([]Entry, error) {
	from, to, limit := opts.window()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []Entry
	for _, e := range r.entries {
		if e.SiteID != siteID {
			continue
		}
		if e.RecordedAt.Before(from) || e.RecordedAt.After(to) {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RecordedAt.After(entries[j].RecordedAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Prune deletes entries recorded before the given time.
func (r *InMemoryRepository) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var removed int64
	for _, e := range r.entries {
		if e.RecordedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
