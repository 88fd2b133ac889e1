package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// Record is one row of a business dataset.
type Record = map[string]any

// Loader loads a dataset from its backing source. Data sources satisfy
// this interface.
type Loader interface {
	Fetch(ctx context.Context) ([]Record, error)
	Name() string
}

// Store fronts registered data sources with a no-expiry cache. An entry
// stays valid until a caller forces a refresh or invalidates the store;
// there is no TTL.
type Store struct {
	cache  Cache[[]Record]
	logger *slog.Logger

	mu       sync.Mutex
	loaders  map[string]Loader
	inFlight map[string]*sync.Mutex
}

// NewStore creates an empty store
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default().With("component", "cache-store")
	}
	return &Store{
		cache:    NewSimple[[]Record](),
		logger:   logger,
		loaders:  make(map[string]Loader),
		inFlight: make(map[string]*sync.Mutex),
	}
}

// Register binds a dataset key to its loader. Re-registering a key
// replaces the loader and drops any cached entry for it.
func (s *Store) Register(key string, loader Loader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if loader == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Store", "Register", "nil loader")
	}

	s.mu.Lock()
	s.loaders[key] = loader
	s.mu.Unlock()

	_, _ = s.cache.Delete(key)
	return nil
}

// keyLock returns the per-key fetch mutex so concurrent refreshes of the
// same dataset collapse into one loader call at a time.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.inFlight[key]
	if !ok {
		lock = &sync.Mutex{}
		s.inFlight[key] = lock
	}
	return lock
}

// GetCached returns the dataset for key. A cached entry is returned
// as-is unless forceRefresh is set, in which case the loader is always
// consulted and the cache updated on success. A loader failure leaves
// any previous entry untouched and propagates the error so the caller
// can decide how to degrade.
func (s *Store) GetCached(ctx context.Context, key string, forceRefresh bool) ([]Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	if !forceRefresh {
		if records, ok := s.cache.Get(key); ok {
			return cloneRecords(records), nil
		}
	} else {
		s.cache.Stats().Refresh()
	}

	s.mu.Lock()
	loader, ok := s.loaders[key]
	s.mu.Unlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrEntryNotFound, "Store", "GetCached",
			fmt.Sprintf("no loader registered for %q", key))
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if !forceRefresh {
		if records, ok := s.cache.Get(key); ok {
			return cloneRecords(records), nil
		}
	}

	records, err := loader.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "GetCached",
			fmt.Sprintf("fetch dataset %q from %s", key, loader.Name()))
	}

	if _, err := s.cache.Set(key, cloneRecords(records)); err != nil {
		return nil, err
	}
	s.logger.Debug("dataset refreshed", "key", key, "records", len(records), "forced", forceRefresh)
	return records, nil
}

// Set stores a dataset directly, bypassing the loader. Used after
// in-place updates so the cache reflects what was just written.
func (s *Store) Set(key string, records []Record) error {
	_, err := s.cache.Set(key, cloneRecords(records))
	return err
}

// InvalidateAll drops every cached dataset. Loader registrations remain.
func (s *Store) InvalidateAll() {
	_ = s.cache.Clear()
	s.logger.Info("cache invalidated")
}

// Keys returns the registered dataset keys
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.loaders))
	for key := range s.loaders {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns the underlying cache statistics
func (s *Store) Stats() *Statistics {
	return s.cache.Stats()
}

// cloneRecords copies the slice and each record map one level deep so
// callers never share map references with the cache.
func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, record := range records {
		copied := make(Record, len(record))
		for k, v := range record {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}
