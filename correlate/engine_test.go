package correlate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/history"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/cache"
)

// stubLoader backs one dataset in the cache store.
type stubLoader struct {
	name    string
	records []cache.Record
	err     error
	fetches int
}

func (l *stubLoader) Fetch(_ context.Context) ([]cache.Record, error) {
	l.fetches++
	if l.err != nil {
		return nil, l.err
	}
	return l.records, nil
}

func (l *stubLoader) Name() string { return l.name }

// stubArchive returns canned history records and remembers the last query.
type stubArchive struct {
	records []history.Record
	err     error
	lastQ   history.Query
}

func (a *stubArchive) Select(q history.Query) ([]history.Record, error) {
	a.lastQ = q
	return a.records, a.err
}

func newTestEngine(t *testing.T, telemetryRecords, orders []cache.Record, archive Archive) (*Engine, map[string]*stubLoader) {
	t.Helper()

	store := cache.NewStore(nil)
	loaders := map[string]*stubLoader{
		DatasetTelemetry:  {name: "oee", records: telemetryRecords},
		DatasetOrders:     {name: "orders", records: orders},
		DatasetQA:         {name: "qa", records: []cache.Record{{"id": "QA-1", "result": "pass"}}},
		DatasetCompliance: {name: "compliance", records: []cache.Record{}},
	}
	for key, loader := range loaders {
		require.NoError(t, store.Register(key, loader))
	}

	return NewEngine(Deps{Store: store, Archive: archive}), loaders
}

func line(id string, oee float64) cache.Record {
	return cache.Record{"id": id, "status": "running", "oee": oee}
}

func order(number, workCenter string) cache.Record {
	return cache.Record{"orderNumber": number, "workCenter": workCenter, "status": "released"}
}

func TestCorrelateJoinsOrdersToTelemetry(t *testing.T) {
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0), line("LINE-02", 80.0)},
		[]cache.Record{order("ORD-1", "LINE-01"), order("ORD-2", "LINE-02")},
		&stubArchive{records: []history.Record{{EntityID: "LINE-01", Source: history.SourceLive}}},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	require.Len(t, snapshot.Orders, 2)
	assert.True(t, snapshot.Orders[0].HasTelemetry)
	assert.Equal(t, 45.0, snapshot.Orders[0].Telemetry["oee"])
	assert.True(t, snapshot.Orders[1].HasTelemetry)
	assert.Empty(t, snapshot.Issues)
}

func TestCorrelateOrderWithoutLineGetsPlaceholder(t *testing.T) {
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		[]cache.Record{order("ORD-1", "LINE-99"), {"orderNumber": "ORD-2"}},
		&stubArchive{records: []history.Record{{EntityID: "LINE-01"}}},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	require.Len(t, snapshot.Orders, 2)
	for _, correlated := range snapshot.Orders {
		assert.False(t, correlated.HasTelemetry)
		assert.Equal(t, "no-data", correlated.Telemetry["status"])
	}
	assert.Equal(t, "LINE-99", snapshot.Orders[0].Telemetry["id"])
}

func TestCorrelateEveryOrderAppearsExactlyOnce(t *testing.T) {
	// Two orders on the same work center both join the same line.
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		[]cache.Record{order("ORD-1", "LINE-01"), order("ORD-2", "LINE-01"), order("ORD-3", "LINE-01")},
		&stubArchive{records: []history.Record{{EntityID: "LINE-01"}}},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	seen := map[string]int{}
	for _, correlated := range snapshot.Orders {
		seen[correlated.Order["orderNumber"].(string)]++
	}
	assert.Equal(t, map[string]int{"ORD-1": 1, "ORD-2": 1, "ORD-3": 1}, seen)
}

func TestCorrelateAlwaysRefreshesTelemetry(t *testing.T) {
	engine, loaders := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		[]cache.Record{order("ORD-1", "LINE-01")},
		&stubArchive{records: []history.Record{{EntityID: "LINE-01"}}},
	)

	for i := 0; i < 3; i++ {
		_, err := engine.Correlate(context.Background(), nil, history.Query{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, loaders[DatasetTelemetry].fetches, "telemetry is force-refreshed per snapshot")
	assert.Equal(t, 1, loaders[DatasetOrders].fetches, "business datasets come from cache")
}

func TestCorrelateBusinessFailureDegradesToEmpty(t *testing.T) {
	engine, loaders := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		nil,
		&stubArchive{records: []history.Record{{EntityID: "LINE-01"}}},
	)
	loaders[DatasetQA].err = fmt.Errorf("lims down")

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	assert.Empty(t, snapshot.QA)
	require.NotEmpty(t, snapshot.Issues)
	assert.Contains(t, snapshot.Issues[0], "qa")
}

func TestCorrelateFilters(t *testing.T) {
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		[]cache.Record{
			order("ORD-1", "LINE-01"),
			{"orderNumber": "ORD-2", "workCenter": "LINE-01", "status": "planned"},
		},
		&stubArchive{records: []history.Record{{EntityID: "LINE-01"}}},
	)

	snapshot, err := engine.Correlate(context.Background(), map[string]string{"status": "released"}, history.Query{})
	require.NoError(t, err)

	require.Len(t, snapshot.Orders, 1)
	assert.Equal(t, "ORD-1", snapshot.Orders[0].Order["orderNumber"])
}

func TestCorrelateEmptyHistoryServesSyntheticSeries(t *testing.T) {
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		nil,
		&stubArchive{},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	require.NotEmpty(t, snapshot.History)
	for _, record := range snapshot.History {
		assert.Equal(t, history.SourceSynthetic, record.Source)
		assert.Equal(t, "LINE-01", record.EntityID)
	}
	assert.Contains(t, snapshot.Issues, "history empty, serving synthetic series")
}

func TestCorrelateRealHistoryPreferred(t *testing.T) {
	archived := []history.Record{{EntityID: "LINE-01", OEE: 45, Source: history.SourceLive}}
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0)},
		nil,
		&stubArchive{records: archived},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{})
	require.NoError(t, err)

	require.Len(t, snapshot.History, 1)
	assert.Equal(t, history.SourceLive, snapshot.History[0].Source)
}

func TestCorrelateForwardsHistoryQuery(t *testing.T) {
	archive := &stubArchive{records: []history.Record{{EntityID: "LINE-02", Source: history.SourceLive}}}
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0), line("LINE-02", 80.0)},
		nil,
		archive,
	)

	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	hq := history.Query{EntityID: "LINE-02", Since: since, Limit: 5}

	snapshot, err := engine.Correlate(context.Background(), nil, hq)
	require.NoError(t, err)

	assert.Equal(t, hq, archive.lastQ, "archive must see the caller's bounds")
	require.Len(t, snapshot.History, 1)
	assert.Equal(t, "LINE-02", snapshot.History[0].EntityID)
}

func TestCorrelateSyntheticFallbackHonoursEntityBound(t *testing.T) {
	engine, _ := newTestEngine(t,
		[]cache.Record{line("LINE-01", 45.0), line("LINE-02", 80.0)},
		nil,
		&stubArchive{},
	)

	snapshot, err := engine.Correlate(context.Background(), nil, history.Query{EntityID: "LINE-02"})
	require.NoError(t, err)

	require.NotEmpty(t, snapshot.History)
	for _, record := range snapshot.History {
		assert.Equal(t, "LINE-02", record.EntityID)
		assert.Equal(t, history.SourceSynthetic, record.Source)
	}
}

func TestGeneratorSeriesBoundsAndTags(t *testing.T) {
	gen := NewGenerator(42)
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	series := gen.Series([]string{"LINE-01", "LINE-02"}, 24, end)
	require.Len(t, series, 48)

	for _, record := range series {
		assert.Equal(t, history.SourceSynthetic, record.Source)
		assert.GreaterOrEqual(t, record.Availability, 60.0)
		assert.LessOrEqual(t, record.Availability, 100.0)
		assert.GreaterOrEqual(t, record.Quality, 85.0)
		assert.LessOrEqual(t, record.OEE, 100.0)
		assert.False(t, record.Timestamp.After(end))
	}

	// Hourly spacing, oldest first within an entity.
	assert.Equal(t, end.Add(-23*time.Hour), series[0].Timestamp)
	assert.Equal(t, end, series[23].Timestamp)
}
