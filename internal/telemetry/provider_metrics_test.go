package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airpulse/airpulse/internal/telemetry"
)

func TestNewProviderMetrics(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)
	assert.NotNil(t, pm)
}

func TestProviderMetrics_RecordRequest(t *testing.T) {
	pm, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)

	// Should not panic
	pm.RecordRequest("epa-victoria", "fetch-parameters", 120*time.Millisecond, nil)
	pm.RecordRequest("epa-victoria", "find-site", time.Second, errors.New("status 429"))
}

func TestProviderMetrics_RecordRequest_NilReceiver(t *testing.T) {
	var pm *telemetry.ProviderMetrics

	// Should not panic when metrics are not configured
	pm.RecordRequest("epa-victoria", "list-sites", time.Millisecond, nil)
}
