package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSize bounds a store when the config leaves MaxSize unset.
const DefaultMaxSize = 10000

// Config holds cache configuration
type Config struct {
	MaxSize int `json:"max_size"` // Maximum number of entries
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize}
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// CalculateHitRate calculates the hit rate
func (s *Stats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}

// Store is a size-bounded LRU map with hit/miss accounting
type Store[K comparable, V any] struct {
	cache   *lru.Cache[K, V]
	maxSize int

	mu    sync.Mutex
	stats Stats
}

// NewStore creates a new LRU store
func NewStore[K comparable, V any](config Config) (*Store[K, V], error) {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}

	s := &Store[K, V]{
		maxSize: config.MaxSize,
		stats:   Stats{MaxSize: config.MaxSize},
	}

	cache, err := lru.NewWithEvict[K, V](config.MaxSize, func(K, V) {
		s.mu.Lock()
		s.stats.Evictions++
		s.mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	s.cache = cache

	return s, nil
}

// Get retrieves a value from the store
func (s *Store[K, V]) Get(key K) (V, bool) {
	value, ok := s.cache.Get(key)

	s.mu.Lock()
	if ok {
		s.stats.Hits++
	} else {
		s.stats.Misses++
	}
	s.mu.Unlock()

	return value, ok
}

// Peek retrieves a value without touching recency or stats
func (s *Store[K, V]) Peek(key K) (V, bool) {
	return s.cache.Peek(key)
}

// Set stores a value
func (s *Store[K, V]) Set(key K, value V) {
	s.cache.Add(key, value)
}

// Delete removes a value from the store
func (s *Store[K, V]) Delete(key K) {
	s.cache.Remove(key)
}

// Clear removes all values. Purging does not count as eviction.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	evictions := s.stats.Evictions
	s.mu.Unlock()

	s.cache.Purge()

	s.mu.Lock()
	s.stats.Evictions = evictions
	s.mu.Unlock()
}

// Len returns the number of items in the store
func (s *Store[K, V]) Len() int {
	return s.cache.Len()
}

// Keys returns all keys, oldest first
func (s *Store[K, V]) Keys() []K {
	return s.cache.Keys()
}

// Stats returns store statistics
func (s *Store[K, V]) Stats() Stats {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	stats.Size = s.cache.Len()
	stats.CalculateHitRate()
	return stats
}

// ResetStats resets hit/miss/eviction counters
func (s *Store[K, V]) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = Stats{MaxSize: s.maxSize}
}
