package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator handles in-flight request deduplication
type Deduplicator[V any] struct {
	group singleflight.Group
	mu    sync.RWMutex
	stats DedupStats
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
	CacheHits    int64 `json:"cache_hits"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator[V any]() *Deduplicator[V] {
	return &Deduplicator[V]{}
}

// Execute runs fn once per key among concurrent callers
func (d *Deduplicator[V]) Execute(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	d.updateStats(false, false)

	result, err, shared := d.group.Do(key, func() (interface{}, error) {
		return fn(ctx)
	})
	if shared {
		d.updateStats(true, false)
	}
	if err != nil {
		var zero V
		return zero, err
	}

	return result.(V), nil
}

// ExecuteWithCache checks store first, then runs fn deduplicated and stores its result.
// The returned bool reports a cache hit.
func (d *Deduplicator[V]) ExecuteWithCache(
	ctx context.Context,
	key string,
	store *Store[string, V],
	fn func(ctx context.Context) (V, error),
) (V, bool, error) {
	if store != nil {
		if value, ok := store.Get(key); ok {
			d.updateStats(false, true)
			return value, true, nil
		}
	}

	value, err := d.Execute(ctx, key, func(ctx context.Context) (V, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if store != nil {
			store.Set(key, v)
		}
		return v, nil
	})
	return value, false, err
}

// updateStats updates deduplication statistics.
// A deduplicated call is counted once as a request and once as shared.
func (d *Deduplicator[V]) updateStats(deduplicated, cacheHit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case deduplicated:
		d.stats.Deduplicated++
	case cacheHit:
		d.stats.Requests++
		d.stats.CacheHits++
	default:
		d.stats.Requests++
	}
}

// Stats returns deduplication statistics
func (d *Deduplicator[V]) Stats() DedupStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Reset resets all statistics
func (d *Deduplicator[V]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = DedupStats{}
}
