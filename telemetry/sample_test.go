package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

func TestComputeOEE(t *testing.T) {
	tests := []struct {
		name         string
		availability float64
		performance  float64
		quality      float64
		want         float64
	}{
		{"typical shift", 100, 50, 90, 45.0},
		{"all perfect", 100, 100, 100, 100.0},
		{"performance capped at 100", 90, 150, 100, 90.0},
		{"all zero", 0, 0, 0, 0.0},
		{"product can exceed 100", 120, 100, 100, 120.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeOEE(tt.availability, tt.performance, tt.quality)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestParseSample(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("valid payload recomputes oee", func(t *testing.T) {
		payload := `{
			"line": "LINE-01",
			"status": "running",
			"batchId": "B-100",
			"counters": {"plannedTime": 480, "operatingTime": 450, "goodCount": 900, "badCount": 12},
			"metrics": {"availability": 100, "performance": 50, "quality": 90, "oee": 99.9},
			"timestamp": "2026-03-10T11:59:30Z"
		}`

		sample, err := parseSample([]byte(payload), now)
		require.NoError(t, err)

		assert.Equal(t, "LINE-01", sample.EntityID)
		assert.Equal(t, "running", sample.Status)
		assert.Equal(t, "B-100", sample.BatchID)
		assert.Equal(t, 900, sample.Counters.GoodCount)
		// The reported oee figure is ignored and recomputed from components.
		assert.InDelta(t, 45.0, sample.Metrics.OEE, 0.0001)
		assert.Equal(t, now, sample.ReceivedAt)
		assert.Equal(t, 30*time.Second, sample.Age)
	})

	t.Run("zero timestamp defaults to receipt time", func(t *testing.T) {
		payload := `{"line": "LINE-02", "metrics": {"availability": 80, "performance": 90, "quality": 95}}`

		sample, err := parseSample([]byte(payload), now)
		require.NoError(t, err)

		assert.Equal(t, now, sample.Timestamp)
		assert.Equal(t, time.Duration(0), sample.Age)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, err := parseSample([]byte("{not json"), now)
		assert.ErrorIs(t, err, errors.ErrMalformedPayload)
	})

	t.Run("missing line rejected", func(t *testing.T) {
		_, err := parseSample([]byte(`{"metrics": {"availability": 1}}`), now)
		assert.ErrorIs(t, err, errors.ErrMalformedPayload)
	})

	t.Run("missing metrics rejected", func(t *testing.T) {
		_, err := parseSample([]byte(`{"line": "LINE-01"}`), now)
		assert.ErrorIs(t, err, errors.ErrMalformedPayload)
	})
}

func TestSampleCloneIsDeep(t *testing.T) {
	original := Sample{
		EntityID:   "LINE-01",
		Parameters: map[string]any{"temp": 21.5},
		Alarms:     []string{"A1"},
	}

	copied := original.clone()
	copied.Parameters["temp"] = 99.0
	copied.Alarms[0] = "A2"

	assert.Equal(t, 21.5, original.Parameters["temp"])
	assert.Equal(t, "A1", original.Alarms[0])
}
