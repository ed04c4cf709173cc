// Package cachemanager provides typed caches used by the card data
// provider: a go-cache backed store and a read-through wrapper that
// collapses concurrent loads of the same key.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-entry TTLs.
type CacheManager[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	GetMultiple(ctx context.Context, keys []string) map[string]V
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	Flush(ctx context.Context)
	Len() int
}
