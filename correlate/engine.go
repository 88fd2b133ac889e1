package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/history"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/cache"
)

// Dataset keys the engine expects in the cache store. The telemetry
// dataset is always force-refreshed; the business datasets are served
// from cache and degrade to empty on fetch failure.
const (
	DatasetTelemetry  = "oee"
	DatasetOrders     = "orders"
	DatasetQA         = "qa"
	DatasetCompliance = "compliance"
)

// CorrelatedOrder pairs a process order with the live telemetry of its
// work center. Orders without a matching line get a no-data placeholder
// so consumers can always render the pair.
type CorrelatedOrder struct {
	Order        cache.Record `json:"order"`
	Telemetry    cache.Record `json:"telemetry"`
	HasTelemetry bool         `json:"hasTelemetry"`
}

// Snapshot is the full correlated production view.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Hot         []cache.Record    `json:"hot"`
	Orders      []CorrelatedOrder `json:"orders"`
	QA          []cache.Record    `json:"qa"`
	Compliance  []cache.Record    `json:"compliance"`
	History     []history.Record  `json:"history"`
	Issues      []string          `json:"issues,omitempty"`
}

// Archive is the slice of the history log the engine reads.
type Archive interface {
	Select(q history.Query) ([]history.Record, error)
}

// Deps holds the engine's collaborators
type Deps struct {
	Store   *cache.Store
	Archive Archive
	Logger  *slog.Logger
}

// Engine joins live telemetry with cached business datasets.
type Engine struct {
	store     *cache.Store
	archive   Archive
	logger    *slog.Logger
	synthetic *Generator
}

// NewEngine creates a correlation engine
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     deps.Store,
		archive:   deps.Archive,
		logger:    logger.With("component", "correlate"),
		synthetic: NewGenerator(0),
	}
}

// Correlate builds a snapshot. Telemetry is always refreshed from the
// live source; business datasets come from cache and degrade to empty
// (with an issue noted) rather than failing the whole snapshot. Every
// order that passes the filters appears in the result exactly once.
// The history query bounds the archived series included in the snapshot
// (entity, time range, limit); a zero query means the archive default.
func (e *Engine) Correlate(ctx context.Context, filters map[string]string, hq history.Query) (*Snapshot, error) {
	snapshot := &Snapshot{GeneratedAt: time.Now().UTC()}

	hot, err := e.store.GetCached(ctx, DatasetTelemetry, true)
	if err != nil {
		// Live data is the one dataset worth failing over; without it
		// the correlation has nothing to join against.
		snapshot.Issues = append(snapshot.Issues, fmt.Sprintf("telemetry refresh failed: %v", err))
		e.logger.Warn("telemetry refresh failed", "error", err)
		hot = []cache.Record{}
	}
	snapshot.Hot = hot

	orders := e.business(ctx, DatasetOrders, snapshot)
	snapshot.QA = e.business(ctx, DatasetQA, snapshot)
	snapshot.Compliance = e.business(ctx, DatasetCompliance, snapshot)

	byLine := make(map[string]cache.Record, len(hot))
	for _, record := range hot {
		if id, ok := record["id"].(string); ok && id != "" {
			byLine[id] = record
		}
	}

	snapshot.Orders = make([]CorrelatedOrder, 0, len(orders))
	for _, order := range orders {
		if !matchesFilters(order, filters) {
			continue
		}

		correlated := CorrelatedOrder{Order: order}
		if line := workCenter(order); line != "" {
			if tele, ok := byLine[line]; ok {
				correlated.Telemetry = tele
				correlated.HasTelemetry = true
			}
		}
		if !correlated.HasTelemetry {
			correlated.Telemetry = noDataPlaceholder(workCenter(order))
		}
		snapshot.Orders = append(snapshot.Orders, correlated)
	}

	snapshot.History = e.loadHistory(snapshot, hq)
	return snapshot, nil
}

// business fetches a cached dataset, degrading to empty on failure
func (e *Engine) business(ctx context.Context, key string, snapshot *Snapshot) []cache.Record {
	records, err := e.store.GetCached(ctx, key, false)
	if err != nil {
		snapshot.Issues = append(snapshot.Issues, fmt.Sprintf("dataset %q unavailable: %v", key, err))
		e.logger.Warn("business dataset unavailable", "dataset", key, "error", err)
		return []cache.Record{}
	}
	return records
}

// loadHistory reads the archive, falling back to a generated series when
// it is empty or unreadable. Generated records carry the synthetic
// source tag and are never persisted.
func (e *Engine) loadHistory(snapshot *Snapshot, hq history.Query) []history.Record {
	if e.archive != nil {
		records, err := e.archive.Select(hq)
		if err != nil {
			snapshot.Issues = append(snapshot.Issues, fmt.Sprintf("history unavailable: %v", err))
			e.logger.Warn("history unavailable", "error", err)
		} else if len(records) > 0 {
			return records
		}
	}

	var entities []string
	if hq.EntityID != "" {
		entities = []string{hq.EntityID}
	} else {
		for _, record := range snapshot.Hot {
			if id, ok := record["id"].(string); ok && id != "" {
				entities = append(entities, id)
			}
		}
	}
	if len(entities) == 0 {
		entities = []string{"LINE-01"}
	}

	series := e.synthetic.Series(entities, 24, snapshot.GeneratedAt)
	snapshot.Issues = append(snapshot.Issues, "history empty, serving synthetic series")
	return series
}

// workCenter extracts the join key from an order
func workCenter(order cache.Record) string {
	for _, field := range []string{"workCenter", "line", "resource"} {
		if v, ok := order[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// matchesFilters applies simple equality filters against order fields
func matchesFilters(order cache.Record, filters map[string]string) bool {
	for field, want := range filters {
		got, ok := order[field].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// noDataPlaceholder is what an order without live telemetry joins to
func noDataPlaceholder(line string) cache.Record {
	placeholder := cache.Record{
		"status": "no-data",
		"oee":    0.0,
	}
	if line != "" {
		placeholder["id"] = line
	}
	return placeholder
}
