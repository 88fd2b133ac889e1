package history

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/telemetry"
)

// Source tags distinguishing real measurements from generated fallback
// series. Consumers must be able to tell them apart.
const (
	SourceLive      = "live"
	SourceSynthetic = "synthetic"
)

// Record is one archived effectiveness measurement.
type Record struct {
	EntityID     string    `json:"entityId"`
	Status       string    `json:"status,omitempty"`
	BatchID      string    `json:"batchId,omitempty"`
	Availability float64   `json:"availability"`
	Performance  float64   `json:"performance"`
	Quality      float64   `json:"quality"`
	OEE          float64   `json:"oee"`
	GoodCount    int       `json:"goodCount,omitempty"`
	BadCount     int       `json:"badCount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
}

// FromSample converts a live telemetry sample into an archive record
func FromSample(s telemetry.Sample) Record {
	return Record{
		EntityID:     s.EntityID,
		Status:       s.Status,
		BatchID:      s.BatchID,
		Availability: s.Metrics.Availability,
		Performance:  s.Metrics.Performance,
		Quality:      s.Metrics.Quality,
		OEE:          s.Metrics.OEE,
		GoodCount:    s.Counters.GoodCount,
		BadCount:     s.Counters.BadCount,
		Timestamp:    s.Timestamp,
		Source:       SourceLive,
	}
}

// Query selects a slice of the archive. Zero values mean "no filter";
// Limit 0 falls back to the log's default.
type Query struct {
	EntityID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Log is a JSON-file backed append-only archive. The file holds one
// JSON array; every append rewrites it in full through a temp file and
// rename, so readers never observe a torn write. The O(n) rewrite is a
// deliberate trade for a file that stays directly inspectable.
type Log struct {
	path         string
	defaultLimit int
	logger       *slog.Logger

	mu sync.Mutex
}

// NewLog creates an archive backed by the given file path
func NewLog(path string, defaultLimit int, logger *slog.Logger) (*Log, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "history", "NewLog", "empty file path")
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if logger == nil {
		logger = slog.Default().With("component", "history")
	}
	return &Log{path: path, defaultLimit: defaultLimit, logger: logger}, nil
}

// Append adds records to the archive. The whole file is read, extended
// and rewritten under the lock.
func (l *Log) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.load()
	if err != nil {
		return err
	}

	existing = append(existing, records...)
	if err := l.rewrite(existing); err != nil {
		return err
	}

	l.logger.Debug("history appended", "added", len(records), "total", len(existing))
	return nil
}

// LoadAll returns every archived record in file order
func (l *Log) LoadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Select returns matching records newest-first, capped at the query
// limit (or the default when unset).
func (l *Log) Select(q Query) ([]Record, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if q.EntityID != "" && r.EntityID != q.EntityID {
			continue
		}
		if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && r.Timestamp.After(q.Until) {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = l.defaultLimit
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// Count returns the number of archived records
func (l *Log) Count() (int, error) {
	records, err := l.LoadAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (l *Log) load() ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, errors.Wrap(err, "history", "load", "read archive file")
	}
	if len(data) == 0 {
		return []Record{}, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WrapInvalid(err, "history", "load", "parse archive file")
	}
	return records, nil
}

func (l *Log) rewrite(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "history", "rewrite", "encode archive")
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapFatal(err, "history", "rewrite", "create archive directory")
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return errors.Wrap(err, "history", "rewrite", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "history", "rewrite", "write archive")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "history", "rewrite", "close temp file")
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "history", "rewrite", "replace archive file")
	}
	return nil
}
