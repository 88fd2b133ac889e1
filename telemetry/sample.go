package telemetry

import (
	"encoding/json"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// Counters holds the raw production counters reported by a line.
type Counters struct {
	PlannedTime   float64 `json:"plannedTime"`
	OperatingTime float64 `json:"operatingTime"`
	GoodCount     int     `json:"goodCount"`
	BadCount      int     `json:"badCount"`
}

// OEEMetrics holds the effectiveness components in percent.
// The combined OEE is recomputed on ingest from the three components;
// performance is capped at 100 before multiplying, the product itself
// is not capped.
type OEEMetrics struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
}

// Sample is the latest telemetry state for one production line.
// Identity key is EntityID; a new sample for the same entity supersedes
// the previous one entirely (no merging).
type Sample struct {
	EntityID   string         `json:"entityId"`
	Status     string         `json:"status"`
	BatchID    string         `json:"batchId,omitempty"`
	Counters   Counters       `json:"counters"`
	Metrics    OEEMetrics     `json:"metrics"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Alarms     []string       `json:"alarms,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Age        time.Duration  `json:"age"`
}

// wirePayload is the inbound broker message shape. Line and Metrics are
// required; everything else is optional.
type wirePayload struct {
	Line       string         `json:"line"`
	Status     string         `json:"status"`
	BatchID    string         `json:"batchId"`
	Counters   Counters       `json:"counters"`
	Metrics    *OEEMetrics    `json:"metrics"`
	Parameters map[string]any `json:"parameters"`
	Alarms     []string       `json:"alarms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ComputeOEE returns availability × performance × quality with the
// performance component capped at 100%. Components are percentages, as
// is the result; the product can mathematically exceed 100 if another
// component does.
func ComputeOEE(availability, performance, quality float64) float64 {
	if performance > 100 {
		performance = 100
	}
	return availability * performance * quality / 10000
}

// parseSample validates a raw broker payload and converts it into a
// Sample annotated with receipt time and age. It returns
// errors.ErrMalformedPayload for non-JSON input or payloads missing the
// required line/metrics fields.
func parseSample(data []byte, now time.Time) (Sample, error) {
	var payload wirePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Sample{}, errors.WrapInvalid(errors.ErrMalformedPayload, "telemetry", "parseSample", "decode JSON")
	}

	if payload.Line == "" || payload.Metrics == nil {
		return Sample{}, errors.WrapInvalid(errors.ErrMalformedPayload, "telemetry", "parseSample",
			"missing required line/metrics fields")
	}

	metrics := *payload.Metrics
	metrics.OEE = ComputeOEE(metrics.Availability, metrics.Performance, metrics.Quality)

	timestamp := payload.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	return Sample{
		EntityID:   payload.Line,
		Status:     payload.Status,
		BatchID:    payload.BatchID,
		Counters:   payload.Counters,
		Metrics:    metrics,
		Parameters: payload.Parameters,
		Alarms:     payload.Alarms,
		Timestamp:  timestamp,
		ReceivedAt: now,
		Age:        now.Sub(timestamp),
	}, nil
}

// clone returns a deep copy so callers never hold references into the
// client's internal state.
func (s Sample) clone() Sample {
	out := s
	if s.Parameters != nil {
		out.Parameters = make(map[string]any, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	if s.Alarms != nil {
		out.Alarms = append([]string(nil), s.Alarms...)
	}
	return out
}
