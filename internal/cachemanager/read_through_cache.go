package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/cardsmith/internal/log"
)

// Source reports where a ReadThroughCache value came from.
type Source int

const (
	SourceCache  Source = iota // Served from the cache
	SourceLoad                 // This call ran the loader
	SourceShared               // Joined another caller's in-flight load
)

// Stats counts read-through outcomes.
type Stats struct {
	Hits   int64
	Loads  int64
	Shared int64
}

// ReadThroughCache serves values from a cache and loads misses through fn.
// Concurrent misses for one key share a single fn call. Failed loads are
// not cached.
//
// A shared load runs detached from the cancellation of the caller that
// started it; each caller stops waiting when its own ctx ends. fn must
// bound its own running time.
type ReadThroughCache[V any, I any] struct {
	cache CacheManager[V]
	fn    func(ctx context.Context, input I) (V, error)
	group singleflight.Group

	hits, loads, shared atomic.Int64
}

// NewReadThroughCache wraps cache with loader fn.
func NewReadThroughCache[V any, I any](cache CacheManager[V], fn func(ctx context.Context, input I) (V, error)) *ReadThroughCache[V, I] {
	return &ReadThroughCache[V, I]{cache: cache, fn: fn}
}

// Get returns the value for key, loading it with input on a miss.
func (r *ReadThroughCache[V, I]) Get(ctx context.Context, key string, input I, ttl time.Duration) (V, error) {
	v, _, err := r.GetWithSource(ctx, key, input, ttl)
	return v, err
}

// GetWithSource is Get that also reports where the value came from.
func (r *ReadThroughCache[V, I]) GetWithSource(ctx context.Context, key string, input I, ttl time.Duration) (V, Source, error) {
	if v, ok := r.cache.Get(ctx, key); ok {
		r.hits.Add(1)
		log.Debug(log.CatCache, "Cache hit", "key", key)
		return v, SourceCache, nil
	}

	var ran atomic.Bool
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the key between our miss and Do.
		if v, ok := r.cache.Get(loadCtx, key); ok {
			return v, nil
		}
		ran.Store(true)
		v, err := r.fn(loadCtx, input)
		if err != nil {
			return v, err
		}
		r.cache.Set(loadCtx, key, v, ttl)
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		log.Debug(log.CatCache, "Stopped waiting for load", "key", key, "error", ctx.Err())
		var zero V
		return zero, SourceShared, ctx.Err()
	}

	source := SourceShared
	switch {
	case ran.Load():
		source = SourceLoad
		r.loads.Add(1)
	case res.Shared:
		r.shared.Add(1)
	default:
		source = SourceCache
		r.hits.Add(1)
	}

	v, _ := res.Val.(V)
	return v, source, res.Err
}

// Peek returns a cached value without loading.
func (r *ReadThroughCache[V, I]) Peek(ctx context.Context, key string) (V, bool) {
	return r.cache.Get(ctx, key)
}

// Stats returns counters since creation.
func (r *ReadThroughCache[V, I]) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Loads: r.loads.Load(), Shared: r.shared.Load()}
}
