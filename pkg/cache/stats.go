package cache

import (
	"sync"
	"sync/atomic"
)

// Statistics tracks cache performance counters.
type Statistics struct {
	hits     atomic.Int64
	misses   atomic.Int64
	sets     atomic.Int64
	refreshs atomic.Int64

	mu          sync.RWMutex
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Hit records a cache hit
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a set operation
func (s *Statistics) Set() { s.sets.Add(1) }

// Refresh records a forced refresh that bypassed a valid entry
func (s *Statistics) Refresh() { s.refreshs.Add(1) }

// UpdateSize updates the current entry count
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of cache hits
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the total number of cache misses
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the total number of set operations
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Refreshes returns the total number of forced refreshes
func (s *Statistics) Refreshes() int64 { return s.refreshs.Load() }

// CurrentSize returns the current number of entries
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// HitRatio returns the hit ratio in the range 0.0 to 1.0
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// StatsSummary is a point-in-time snapshot of all counters.
type StatsSummary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Refreshes   int64   `json:"refreshes"`
	CurrentSize int64   `json:"current_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Summary returns a snapshot of all counters
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.Sets(),
		Refreshes:   s.Refreshes(),
		CurrentSize: s.CurrentSize(),
		HitRatio:    s.HitRatio(),
	}
}
