package models

import "github.com/airpulse/airpulse/internal/airquality"

// Site represents a monitored air quality station.
type Site struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Point Point  `json:"point"`
}

// SiteList is the response for listing monitored sites.
type SiteList struct {
	Items []Site `json:"items"`
}

// SiteObservation pairs a site with its latest observation. The
// observation carries its own stable wire tags, shared with the cache
// file format.
type SiteObservation struct {
	Site        Site                   `json:"site"`
	Observation airquality.Observation `json:"observation"`
}

// HistoryEntry is one archived observation.
type HistoryEntry struct {
	RecordedAt  Timestamp              `json:"recorded_at"`
	Observation airquality.Observation `json:"observation"`
}

// SiteHistory is the response for a site's archived observations,
// newest first.
type SiteHistory struct {
	SiteID string         `json:"site_id"`
	Items  []HistoryEntry `json:"items"`
}
