package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is an in-process LRU bounded by entry count.
//
// The LRU evicts by age after its own ttl as well; entries are additionally
// checked against their RetainUntil on Get.
type MemoryStore struct {
	lru *expirable.LRU[string, *Entry]
}

// NewMemoryStore creates a store holding at most maxEntries entries for at
// most retention each.
func NewMemoryStore(maxEntries int, retention time.Duration) (*MemoryStore, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("max entries must be >= 1 (got %d)", maxEntries)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive (got %s)", retention)
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, *Entry](maxEntries, nil, retention),
	}, nil
}

// Get retrieves a copy of the entry.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	entry, ok := s.lru.Get(cacheKey)
	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}
	if !entry.IsRetained() {
		s.lru.Remove(cacheKey)
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	return entry.Clone(), nil
}

// Set stores a copy of the entry, evicting the least recently used one when full.
func (s *MemoryStore) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.RetentionTTL() <= 0 {
		return nil
	}
	s.lru.Add(key.String(), entry.Clone())
	CacheEntries.WithLabelValues(layerMemory).Set(float64(s.lru.Len()))
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.lru.Remove(key.String())
	CacheEntries.WithLabelValues(layerMemory).Set(float64(s.lru.Len()))
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	s.lru.Purge()
	CacheEntries.WithLabelValues(layerMemory).Set(0)
	return nil
}
