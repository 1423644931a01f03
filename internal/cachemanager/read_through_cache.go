package cachemanager

import (
	"context"
	"sync/atomic"
	"time"
)

// Stats counts how Get calls were served.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// ReadThroughCache loads missing entries with fn and stores successful
// results. Errors are never cached. Safe for concurrent use when the
// underlying cache is.
type ReadThroughCache[K ~string, V any] struct {
	cache     CacheManager[K, V]
	fn        func(ctx context.Context, key K) (V, error)
	skipCache bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewReadThroughCache wraps cache. With skipCache set every Get calls fn.
func NewReadThroughCache[K ~string, V any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, key K) (V, error),
	skipCache bool,
) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{
		cache:     cache,
		fn:        fn,
		skipCache: skipCache,
	}
}

// Get returns the cached value of key, calling fn on a miss. Two concurrent
// misses on the same key may both call fn; the last result wins.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K, ttl time.Duration) (V, error) {
	if r.skipCache {
		r.misses.Add(1)
		return r.fn(ctx, key)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		r.hits.Add(1)
		return value, nil
	}

	r.misses.Add(1)
	value, err := r.fn(ctx, key)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)

	return value, nil
}

// Stats returns the hit and miss counts so far.
func (r *ReadThroughCache[K, V]) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}
