package epavic

import (
	"fmt"
	"time"

	"github.com/airpulse/airpulse/internal/airquality"
)

// ExtractObservation maps a parameters payload onto the normalized
// observation. The 1HR_AV series populates the hourly fields and the
// 24HR_AV series the daily ones; unrecognized series are ignored. Index
// values are derived from the raw concentrations.
//
// When the hourly series reports zero valid samples, the hourly
// concentration, index, and advice are substituted with the daily values:
// a reading backed by no samples carries no information, and consumers
// prefer the rolling average over zeros.
func ExtractObservation(resp *ParametersResponse) (airquality.Observation, error) {
	var obs airquality.Observation

	if resp == nil || len(resp.Parameters) == 0 {
		return obs, fmt.Errorf("%w: no parameters in payload", airquality.ErrSchema)
	}

	var sawHourly, sawDaily bool
	for i := range resp.Parameters {
		p := &resp.Parameters[i]
		switch p.TimeSeriesName {
		case SeriesHourly:
			r, err := firstReading(p)
			if err != nil {
				return airquality.Observation{}, err
			}
			obs.PM25 = r.AverageValue
			obs.AQI = airquality.PM25Index(r.AverageValue)
			obs.Advice = r.HealthAdvice
			obs.Confidence = r.Confidence
			obs.TotalSample = r.TotalSample
			until, err := parseUntil(r.Until)
			if err != nil {
				return airquality.Observation{}, err
			}
			obs.Until = until
			sawHourly = true
		case SeriesDaily:
			r, err := firstReading(p)
			if err != nil {
				return airquality.Observation{}, err
			}
			obs.PM2524h = r.AverageValue
			obs.AQI24h = airquality.PM25Index(r.AverageValue)
			obs.Advice24h = r.HealthAdvice
			sawDaily = true
		}
	}

	if !sawHourly && !sawDaily {
		return airquality.Observation{}, fmt.Errorf("%w: no recognized time series in payload", airquality.ErrSchema)
	}

	if obs.TotalSample != nil && *obs.TotalSample == 0 {
		obs.PM25 = obs.PM2524h
		obs.AQI = obs.AQI24h
		obs.Advice = obs.Advice24h
	}

	return obs, nil
}

// firstReading returns the first reading of a series.
func firstReading(p *Parameter) (*Reading, error) {
	if len(p.Readings) == 0 {
		return nil, fmt.Errorf("%w: %s series has no readings", airquality.ErrSchema, p.TimeSeriesName)
	}
	return &p.Readings[0], nil
}

// parseUntil parses the validity end timestamp. An empty value is
// tolerated and yields the zero time.
func parseUntil(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: until %q: %v", airquality.ErrSchema, s, err)
	}
	return t, nil
}
