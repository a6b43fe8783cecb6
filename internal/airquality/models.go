// Package airquality defines the normalized air quality data model.
package airquality

import (
	"errors"
	"time"
)

// Fetch and extraction errors.
var (
	ErrSiteNotFound      = errors.New("site not found")
	ErrRateLimited       = errors.New("rate limited by provider")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrTransport         = errors.New("provider unreachable")
	ErrFetchTimeout      = errors.New("fetch deadline exceeded")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrSchema            = errors.New("unexpected payload shape")
)

// Site represents a single monitoring station in the provider's network.
type Site struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// MetricKind identifies one of the metrics carried by an Observation.
type MetricKind int

const (
	MetricPM25 MetricKind = iota
	MetricPM2524h
	MetricAQI
	MetricAQI24h
)

// String returns the stable wire name for the metric.
func (k MetricKind) String() string {
	switch k {
	case MetricPM25:
		return "pm25"
	case MetricPM2524h:
		return "pm25_24h"
	case MetricAQI:
		return "aqi_pm25"
	case MetricAQI24h:
		return "aqi_pm25_24h"
	default:
		return "unknown"
	}
}

// Observation is the normalized outcome of one successful fetch.
//
// PM25 and AQI describe the current hour; the 24h fields describe the
// rolling 24-hour average. Confidence and TotalSample are only present
// when the provider reports them for the hourly series.
type Observation struct {
	// PM25 is the current-hour PM2.5 concentration in µg/m³.
	PM25 float64 `json:"pm25"`

	// PM2524h is the rolling 24-hour PM2.5 concentration in µg/m³.
	PM2524h float64 `json:"pm25_24h"`

	// AQI is the index derived from PM25 via the breakpoint table.
	AQI int `json:"aqi_pm25"`

	// AQI24h is the index derived from PM2524h.
	AQI24h int `json:"aqi_pm25_24h"`

	// Advice is the provider's health advice band for the current hour.
	Advice string `json:"advice"`

	// Advice24h is the advice band for the rolling 24-hour average.
	Advice24h string `json:"advice_24h"`

	// Confidence is the provider's confidence in the hourly reading, 0..1.
	Confidence *float64 `json:"confidence,omitempty"`

	// TotalSample is the number of valid samples behind the hourly reading.
	TotalSample *int `json:"total_sample,omitempty"`

	// Until is when the current-hour reading expires.
	Until time.Time `json:"until"`

	// UpdatedAt is when this Observation was computed locally.
	UpdatedAt time.Time `json:"last_updated"`
}

// IsZero reports whether the Observation is the unpopulated sentinel
// served before the first successful fetch.
func (o Observation) IsZero() bool {
	return o.UpdatedAt.IsZero()
}

// Value returns the numeric reading for the given metric.
func (o Observation) Value(k MetricKind) float64 {
	switch k {
	case MetricPM25:
		return o.PM25
	case MetricPM2524h:
		return o.PM2524h
	case MetricAQI:
		return float64(o.AQI)
	case MetricAQI24h:
		return float64(o.AQI24h)
	default:
		return 0
	}
}

// AdviceFor returns the advice band matching the metric's averaging window.
func (o Observation) AdviceFor(k MetricKind) string {
	switch k {
	case MetricPM2524h, MetricAQI24h:
		return o.Advice24h
	default:
		return o.Advice
	}
}
