package cachemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_LoadsOnceThenHits(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	rt := NewReadThroughCache[string, string](newCache[string](), func(_ context.Context, in string) (string, error) {
		calls.Add(1)
		return "loaded:" + in, nil
	})

	v, src, err := rt.GetWithSource(ctx, "k", "x", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:x", v)
	require.Equal(t, SourceLoad, src)

	v, src, err = rt.GetWithSource(ctx, "k", "y", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:x", v)
	require.Equal(t, SourceCache, src)

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, Stats{Hits: 1, Loads: 1}, rt.Stats())
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	fail := true
	rt := NewReadThroughCache[int, struct{}](newCache[int](), func(context.Context, struct{}) (int, error) {
		if fail {
			return 0, errors.New("boom")
		}
		return 7, nil
	})

	_, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.EqualError(t, err, "boom")
	_, ok := rt.Peek(ctx, "k")
	require.False(t, ok)

	fail = false
	v, err := rt.Get(ctx, "k", struct{}{}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestReadThroughCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	rt := NewReadThroughCache[int, int](newCache[int](), func(_ context.Context, in int) (int, error) {
		calls.Add(1)
		<-release
		return in * 2, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := rt.Get(ctx, "same", 21, time.Minute)
			require.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestReadThroughCache_CancelledStarterDoesNotFailJoiners(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rt := NewReadThroughCache[string, string](newCache[string](), func(ctx context.Context, in string) (string, error) {
		close(started)
		select {
		case <-release:
			return "loaded:" + in, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	starterCtx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, err := rt.Get(starterCtx, "k", "x", time.Minute)
		starterErr <- err
	}()
	<-started

	type result struct {
		v   string
		src Source
		err error
	}
	joined := make(chan result, 1)
	go func() {
		v, src, err := rt.GetWithSource(context.Background(), "k", "y", time.Minute)
		joined <- result{v, src, err}
	}()

	cancel()
	require.ErrorIs(t, <-starterErr, context.Canceled)

	close(release)
	res := <-joined
	require.NoError(t, res.err)
	require.Equal(t, "loaded:x", res.v)

	v, ok := rt.Peek(context.Background(), "k")
	require.True(t, ok, "the detached load still fills the cache")
	require.Equal(t, "loaded:x", v)
}
