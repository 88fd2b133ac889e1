package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// fileSource serves a dataset from a local JSON file holding an array of
// objects. Updates merge a patch into the matching record and rewrite
// the whole collection; concurrent updates serialize on the mutex.
type fileSource struct {
	name   string
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

func newFileSource(name string, cfg config.SourceConfig, logger *slog.Logger) *fileSource {
	return &fileSource{
		name:   name,
		path:   cfg.Location,
		logger: logger,
		now:    time.Now,
	}
}

func (s *fileSource) Name() string { return s.name }

// Fetch reads the backing file. A missing file is an empty dataset, not
// an error: bare deployments start without seed data.
func (s *fileSource) Fetch(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *fileSource) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("dataset file missing, serving empty dataset", "path", s.path)
			return []Record{}, nil
		}
		return nil, errors.Wrap(err, s.name, "Fetch", "read dataset file")
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WrapInvalid(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("dataset file %s is not a JSON array", s.path))
	}
	return records, nil
}

// Update merges the patch into the record whose identifier matches id,
// stamps lastUpdated, and rewrites the collection. The rewrite goes
// through a temp file and rename so a crash never leaves a half-written
// dataset behind.
func (s *fileSource) Update(_ context.Context, id string, patch Record) (Record, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrEntryNotFound, s.name, "Update", "empty record id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, record := range records {
		if rid, ok := recordID(record); ok && rid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.WrapInvalid(errors.ErrEntryNotFound, s.name, "Update",
			fmt.Sprintf("record %q not found", id))
	}

	for k, v := range patch {
		records[idx][k] = v
	}
	records[idx]["lastUpdated"] = s.now().UTC().Format(time.RFC3339)

	if err := s.rewrite(records); err != nil {
		return nil, err
	}

	s.logger.Info("record updated", "id", id, "fields", len(patch))
	return records[idx], nil
}

func (s *fileSource) rewrite(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, s.name, "Update", "encode dataset")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapFatal(err, s.name, "Update", "create dataset directory")
	}

	tmp, err := os.CreateTemp(dir, ".dataset-*.json")
	if err != nil {
		return errors.Wrap(err, s.name, "Update", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, s.name, "Update", "write dataset")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, s.name, "Update", "close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, s.name, "Update", "replace dataset file")
	}
	return nil
}

func (s *fileSource) Cleanup() error { return nil }
