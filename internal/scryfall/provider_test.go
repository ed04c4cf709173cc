package scryfall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/cardsmith/internal/card"
)

type countingSource struct {
	mu    sync.Mutex
	calls map[string]int
	total atomic.Int32
	fn    func(id card.Identity, call int) ([]byte, error)
}

func newCountingSource(fn func(id card.Identity, call int) ([]byte, error)) *countingSource {
	return &countingSource{calls: map[string]int{}, fn: fn}
}

func (s *countingSource) Lookup(_ context.Context, id card.Identity) ([]byte, error) {
	s.total.Add(1)
	s.mu.Lock()
	s.calls[id.Key()]++
	n := s.calls[id.Key()]
	s.mu.Unlock()
	return s.fn(id, n)
}

func cardJSON(name, lang string) []byte {
	return []byte(fmt.Sprintf(`{"object":"card","name":%q,"layout":"normal","lang":%q,"set":"tst","type_line":"Instant","artist":"Someone"}`, name, lang))
}

func ok(id card.Identity, _ int) ([]byte, error) {
	return cardJSON(id.Name, id.Lang()), nil
}

func fastOptions() Options {
	return Options{
		RequestsPerSecond: 10000,
		Burst:             100,
		MaxAttempts:       3,
		AttemptTimeout:    time.Second,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
	}
}

func TestFetch_Success(t *testing.T) {
	src := newCountingSource(ok)
	p := New(src, fastOptions())

	res := p.Fetch(context.Background(), card.Identity{Name: "Opt"})
	require.NoError(t, res.Err)
	require.Equal(t, "Opt", res.Record.Name)
	require.Equal(t, "TST", res.Record.Set)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 0, res.Retries())
	require.False(t, res.Cached)

	again := p.Fetch(context.Background(), card.Identity{Name: "opt"})
	require.NoError(t, again.Err)
	require.True(t, again.Cached)
	require.Equal(t, 0, again.Attempts)
	require.Equal(t, int32(1), src.total.Load())
}

// With one of N identities already cached, a batch makes exactly N-1
// source calls.
func TestFetchBatch_SkipsCachedEntries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		cachedIdx := rapid.IntRange(0, n-1).Draw(t, "cached")

		src := newCountingSource(ok)
		p := New(src, fastOptions())

		ids := make([]card.Identity, n)
		for i := range ids {
			ids[i] = card.Identity{Name: fmt.Sprintf("Card %d", i), Set: "TST"}
		}
		if res := p.Fetch(context.Background(), ids[cachedIdx]); res.Err != nil {
			t.Fatal(res.Err)
		}
		src.total.Store(0)

		results := p.FetchBatch(context.Background(), ids)
		if got := int(src.total.Load()); got != n-1 {
			t.Fatalf("source calls = %d, want %d", got, n-1)
		}
		for i, r := range results {
			if r.Err != nil {
				t.Fatalf("result %d: %v", i, r.Err)
			}
			if r.Identity != ids[i] {
				t.Fatalf("result %d out of order: %v", i, r.Identity)
			}
			if r.Cached != (i == cachedIdx) {
				t.Fatalf("result %d cached = %v", i, r.Cached)
			}
		}
	})
}

// A source failing transiently K times then succeeding: K < max succeeds
// with K retries, K >= max is a terminal FetchError.
func TestFetch_RetriesTransientFailures(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxAttempts := rapid.IntRange(1, 5).Draw(t, "max")
		k := rapid.IntRange(0, 7).Draw(t, "failures")

		src := newCountingSource(func(id card.Identity, call int) ([]byte, error) {
			if call <= k {
				return nil, &StatusError{Code: 503, URL: "test"}
			}
			return cardJSON(id.Name, "en"), nil
		})
		opts := fastOptions()
		opts.MaxAttempts = maxAttempts
		p := New(src, opts)

		res := p.Fetch(context.Background(), card.Identity{Name: "Opt"})
		if k < maxAttempts {
			if res.Err != nil {
				t.Fatalf("k=%d max=%d: unexpected error %v", k, maxAttempts, res.Err)
			}
			if res.Retries() != k {
				t.Fatalf("retries = %d, want %d", res.Retries(), k)
			}
			return
		}
		var fe *FetchError
		if !errors.As(res.Err, &fe) {
			t.Fatalf("k=%d max=%d: want FetchError, got %v", k, maxAttempts, res.Err)
		}
		if fe.Kind != KindExhausted || fe.Attempts != maxAttempts {
			t.Fatalf("got kind=%s attempts=%d, want %s/%d", fe.Kind, fe.Attempts, KindExhausted, maxAttempts)
		}
	})
}

func TestFetch_PermanentFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", ErrNotFound, KindNotFound},
		{"ambiguous", ErrAmbiguous, KindAmbiguous},
		{"bad request", &StatusError{Code: 400, URL: "x"}, KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newCountingSource(func(card.Identity, int) ([]byte, error) { return nil, tt.err })
			p := New(src, fastOptions())

			res := p.Fetch(context.Background(), card.Identity{Name: "Opt"})
			var fe *FetchError
			require.ErrorAs(t, res.Err, &fe)
			require.Equal(t, tt.kind, fe.Kind)
			require.Equal(t, 1, fe.Attempts)
			require.Equal(t, int32(1), src.total.Load())
		})
	}
}

func TestFetch_FailuresAreNotCached(t *testing.T) {
	fail := atomic.Bool{}
	fail.Store(true)
	src := newCountingSource(func(id card.Identity, _ int) ([]byte, error) {
		if fail.Load() {
			return nil, ErrNotFound
		}
		return cardJSON(id.Name, "en"), nil
	})
	p := New(src, fastOptions())

	require.Error(t, p.Fetch(context.Background(), card.Identity{Name: "Opt"}).Err)
	fail.Store(false)
	require.NoError(t, p.Fetch(context.Background(), card.Identity{Name: "Opt"}).Err)
}

func TestFetch_LanguageFallbackAddsWarning(t *testing.T) {
	src := newCountingSource(func(id card.Identity, _ int) ([]byte, error) {
		if id.Lang() == "ja" {
			return nil, ErrNotFound
		}
		return cardJSON(id.Name, id.Lang()), nil
	})
	p := New(src, fastOptions())

	id := card.Identity{Name: "Opt", Language: "ja"}
	res := p.Fetch(context.Background(), id)
	require.NoError(t, res.Err)
	require.Equal(t, "en", res.Record.Lang)
	require.Equal(t, id, res.Record.Identity)
	require.Len(t, res.Record.Warnings, 1)
	require.Contains(t, res.Record.Warnings[0], `"ja"`)
	require.Equal(t, 2, res.Attempts)
}

func TestFetch_FallbackLanguageMissingIsNotFound(t *testing.T) {
	src := newCountingSource(func(card.Identity, int) ([]byte, error) { return nil, ErrNotFound })
	p := New(src, fastOptions())

	res := p.Fetch(context.Background(), card.Identity{Name: "Nope", Language: "de"})
	var fe *FetchError
	require.ErrorAs(t, res.Err, &fe)
	require.Equal(t, KindNotFound, fe.Kind)
}

func TestFetch_ConcurrentSameKeyIssuesOneRequest(t *testing.T) {
	release := make(chan struct{})
	src := newCountingSource(func(id card.Identity, _ int) ([]byte, error) {
		<-release
		return cardJSON(id.Name, "en"), nil
	})
	p := New(src, fastOptions())

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, p.Fetch(context.Background(), card.Identity{Name: "Opt"}).Err)
		}()
	}
	require.Eventually(t, func() bool { return src.total.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), src.total.Load())
}

func TestFetch_CancelledContext(t *testing.T) {
	src := newCountingSource(func(card.Identity, int) ([]byte, error) {
		return nil, &StatusError{Code: 500, URL: "x"}
	})
	opts := fastOptions()
	opts.MaxAttempts = 10
	opts.BackoffInitial = time.Second
	opts.BackoffMax = time.Second
	p := New(src, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := p.Fetch(ctx, card.Identity{Name: "Opt"})
	var fe *FetchError
	require.ErrorAs(t, res.Err, &fe)
	require.Equal(t, KindCancelled, fe.Kind)
}

func TestFetch_RateLimitIsShared(t *testing.T) {
	src := newCountingSource(ok)
	opts := fastOptions()
	opts.RequestsPerSecond = 50
	opts.Burst = 1
	p := New(src, opts)

	ids := make([]card.Identity, 6)
	for i := range ids {
		ids[i] = card.Identity{Name: fmt.Sprintf("Card %d", i)}
	}

	start := time.Now()
	for _, r := range p.FetchBatch(context.Background(), ids) {
		require.NoError(t, r.Err)
	}
	// Six requests at 50/s with a burst of one need at least 100ms.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestBatch_PinsRecords(t *testing.T) {
	src := newCountingSource(ok)
	p := New(src, fastOptions())
	b := p.Batch()

	id := card.Identity{Name: "Opt"}
	first := b.Fetch(context.Background(), id)
	require.NoError(t, first.Err)

	p.Forget(context.Background())
	second := b.Fetch(context.Background(), id)
	require.True(t, second.Cached)
	require.Equal(t, first.Record, second.Record)
	require.Equal(t, int32(1), src.total.Load())

	results := b.FetchBatch(context.Background(), []card.Identity{id, {Name: "Brainstorm"}})
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.Equal(t, int32(2), src.total.Load())

	// Outside the batch the flushed entry is fetched again.
	require.False(t, p.Fetch(context.Background(), id).Cached)
	require.Equal(t, int32(3), src.total.Load())
}

func TestFetch_SearchOrderSeparatesCacheEntries(t *testing.T) {
	src := newCountingSource(ok)
	p := New(src, fastOptions())

	newest := WithOrder(context.Background(), Order{Sorting: "released"})
	oldest := WithOrder(context.Background(), Order{Sorting: "released", Ascending: true})
	id := card.Identity{Name: "Opt"}

	require.False(t, p.Fetch(newest, id).Cached)
	require.True(t, p.Fetch(newest, id).Cached)
	require.False(t, p.Fetch(oldest, id).Cached)
	require.Equal(t, int32(2), src.total.Load())

	// A pinned printing is the same under every order.
	pinned := card.Identity{Name: "Opt", Set: "XLN", Number: "65"}
	require.False(t, p.Fetch(newest, pinned).Cached)
	require.True(t, p.Fetch(oldest, pinned).Cached)
}
