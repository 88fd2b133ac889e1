package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// telemetrySource exposes the live telemetry snapshot through the
// DataSource contract so the cache store and correlation engine can
// treat it like any other dataset. Read-only.
type telemetrySource struct {
	name   string
	client Snapshotter
	logger *slog.Logger
}

func newTelemetrySource(name string, client Snapshotter, logger *slog.Logger) *telemetrySource {
	return &telemetrySource{name: name, client: client, logger: logger}
}

func (s *telemetrySource) Name() string { return s.name }

// Fetch converts the in-memory snapshot into records. It never blocks
// on the broker and never errors: a dead connection yields whatever was
// last received.
func (s *telemetrySource) Fetch(_ context.Context) ([]Record, error) {
	samples := s.client.FetchLatest()

	records := make([]Record, 0, len(samples))
	for _, sample := range samples {
		records = append(records, Record{
			"id":           sample.EntityID,
			"status":       sample.Status,
			"batchId":      sample.BatchID,
			"availability": sample.Metrics.Availability,
			"performance":  sample.Metrics.Performance,
			"quality":      sample.Metrics.Quality,
			"oee":          sample.Metrics.OEE,
			"goodCount":    sample.Counters.GoodCount,
			"badCount":     sample.Counters.BadCount,
			"timestamp":    sample.Timestamp,
		})
	}
	return records, nil
}

func (s *telemetrySource) Update(_ context.Context, id string, _ Record) (Record, error) {
	return nil, errors.WrapInvalid(errors.ErrReadOnlySource, s.name, "Update",
		fmt.Sprintf("update entity %q on read-only telemetry source", id))
}

func (s *telemetrySource) Cleanup() error { return nil }
