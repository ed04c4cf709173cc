package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type entry struct {
	Name string
}

func newCache[V any]() *InMemoryCacheManager[V] {
	return NewInMemoryCacheManager[V]("test", DefaultExpiration, DefaultCleanupInterval)
}

func TestInMemoryCacheManager_SetGet(t *testing.T) {
	ctx := context.Background()
	c := newCache[entry]()

	_, ok := c.Get(ctx, "opt")
	require.False(t, ok)

	c.Set(ctx, "opt", entry{Name: "Opt"}, 0)
	v, ok := c.Get(ctx, "opt")
	require.True(t, ok)
	require.Equal(t, "Opt", v.Name)
	require.Equal(t, 1, c.Len())
}

func TestInMemoryCacheManager_WrongTypeIsMiss(t *testing.T) {
	ctx := context.Background()
	c := newCache[entry]()
	c.cache.Set("k", "not an entry", time.Minute)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestInMemoryCacheManager_GetMultiple(t *testing.T) {
	ctx := context.Background()
	c := newCache[int]()
	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, time.Minute)

	require.Equal(t, map[string]int{"a": 1, "b": 2}, c.GetMultiple(ctx, []string{"a", "b", "c"}))
	require.Empty(t, c.GetMultiple(ctx, nil))
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	ctx := context.Background()
	c := newCache[int]()
	c.Set(ctx, "short", 1, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "short")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	c := newCache[int]()
	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, time.Minute)

	c.Delete(ctx, "a")
	_, ok := c.Get(ctx, "a")
	require.False(t, ok)

	c.Flush(ctx)
	require.Equal(t, 0, c.Len())
}
