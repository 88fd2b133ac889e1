// Package cache provides a thread-safe in-memory cache with no eviction
// policy, plus a Store that fronts slow data sources with explicit
// refresh semantics. Entries never expire: staleness is handled by the
// caller passing forceRefresh, not by a TTL.
package cache

import (
	"strings"
	"sync"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// Cache is a generic thread-safe key/value cache.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently cached.
	Keys() []string

	// Stats returns hit/miss statistics.
	Stats() *Statistics
}

// validateKey rejects empty and whitespace-only keys
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "validateKey", "empty key")
	}
	return nil
}

// simpleCache stores items indefinitely until explicitly deleted or cleared
type simpleCache[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	stats *Statistics
}

// NewSimple creates a cache with no eviction policy
func NewSimple[V any]() Cache[V] {
	return &simpleCache[V]{
		items: make(map[string]V),
		stats: NewStatistics(),
	}
}

func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if exists {
		c.stats.Hit()
	} else {
		c.stats.Miss()
	}
	return value, exists
}

func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	return !exists, nil
}

func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.UpdateSize(int64(size))
	}
	return exists, nil
}

func (c *simpleCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]V)
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	return nil
}

func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	return keys
}

func (c *simpleCache[V]) Stats() *Statistics {
	return c.stats
}
