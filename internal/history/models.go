// Package history archives observations for long-term querying.
package history

import (
	"time"

	"github.com/airpulse/airpulse/internal/airquality"
)

// DefaultRetention is how long archived observations are kept before
// Prune removes them.
const DefaultRetention = 730 * 24 * time.Hour

// Entry is one archived observation.
type Entry struct {
	// ID is assigned by the repository.
	ID int64 `json:"id"`

	// SiteID is the monitoring site the observation belongs to.
	SiteID string `json:"site_id"`

	// Observation is the archived reading.
	Observation airquality.Observation `json:"observation"`

	// RecordedAt is when the observation was taken, mirrored from the
	// observation's own timestamp.
	RecordedAt time.Time `json:"recorded_at"`
}
