package airquality_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/airpulse/airpulse/internal/airquality"
)

func TestObservation_Value(t *testing.T) {
	obs := airquality.Observation{
		PM25:    7.2,
		PM2524h: 11.8,
		AQI:     40,
		AQI24h:  64,
	}

	tests := []struct {
		name     string
		kind     airquality.MetricKind
		expected float64
	}{
		{"hourly concentration", airquality.MetricPM25, 7.2},
		{"daily concentration", airquality.MetricPM2524h, 11.8},
		{"hourly index", airquality.MetricAQI, 40},
		{"daily index", airquality.MetricAQI24h, 64},
		{"unknown kind", airquality.MetricKind(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, obs.Value(tt.kind))
		})
	}
}

func TestObservation_AdviceFor(t *testing.T) {
	obs := airquality.Observation{
		Advice:    "Good",
		Advice24h: "Moderate",
	}

	assert.Equal(t, "Good", obs.AdviceFor(airquality.MetricPM25))
	assert.Equal(t, "Good", obs.AdviceFor(airquality.MetricAQI))
	assert.Equal(t, "Moderate", obs.AdviceFor(airquality.MetricPM2524h))
	assert.Equal(t, "Moderate", obs.AdviceFor(airquality.MetricAQI24h))
}

func TestObservation_IsZero(t *testing.T) {
	var empty airquality.Observation
	assert.True(t, empty.IsZero())

	populated := airquality.Observation{UpdatedAt: time.Now()}
	assert.False(t, populated.IsZero())
}

func TestMetricKind_String(t *testing.T) {
	tests := []struct {
		kind     airquality.MetricKind
		expected string
	}{
		{airquality.MetricPM25, "pm25"},
		{airquality.MetricPM2524h, "pm25_24h"},
		{airquality.MetricAQI, "aqi_pm25"},
		{airquality.MetricAQI24h, "aqi_pm25_24h"},
		{airquality.MetricKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}
