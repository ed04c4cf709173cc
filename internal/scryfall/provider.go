package scryfall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zjrosen/cardsmith/internal/cachemanager"
	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/log"
)

// Options tune a Provider. Zero fields take the defaults noted.
type Options struct {
	RequestsPerSecond float64       // 20
	Burst             int           // 1
	MaxAttempts       int           // 3, including the first try
	AttemptTimeout    time.Duration // 10s
	BackoffInitial    time.Duration // 500ms
	BackoffMax        time.Duration // 5s
	CacheTTL          time.Duration // 1h
	Concurrency       int           // 4 concurrent lookups in FetchBatch
	FallbackLanguage  string        // "en"
}

func (o Options) withDefaults() Options {
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 500 * time.Millisecond
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = max(5*time.Second, o.BackoffInitial)
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.FallbackLanguage == "" {
		o.FallbackLanguage = card.DefaultLanguage
	}
	return o
}

// Result is the outcome of one lookup.
type Result struct {
	Identity card.Identity
	Record   card.Record
	Err      error // *FetchError on failure
	Attempts int   // Source calls made by this lookup; 0 when served from cache
	Cached   bool
}

// Retries returns the number of attempts after the first.
func (r Result) Retries() int {
	return max(r.Attempts-1, 0)
}

// Provider is the card data provider. It is safe for concurrent use; the
// limiter and cache are shared by every caller.
type Provider struct {
	src     Source
	opts    Options
	limiter *rate.Limiter
	store   *cachemanager.InMemoryCacheManager[card.Record]
	cache   *cachemanager.ReadThroughCache[card.Record, *lookup]
}

// lookup is the loader input. A caller can stop waiting while the load
// still runs, so attempts is atomic.
type lookup struct {
	id       card.Identity
	attempts atomic.Int32
}

// New creates a Provider reading from src.
func New(src Source, opts Options) *Provider {
	opts = opts.withDefaults()
	p := &Provider{
		src:     src,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
	p.store = cachemanager.NewInMemoryCacheManager[card.Record]("cards", opts.CacheTTL, cachemanager.DefaultCleanupInterval)
	p.cache = cachemanager.NewReadThroughCache(p.store, p.load)
	return p
}

// Fetch looks up one card.
func (p *Provider) Fetch(ctx context.Context, id card.Identity) Result {
	l := &lookup{id: id}
	rec, src, err := p.cache.GetWithSource(ctx, cacheKey(ctx, id), l, p.opts.CacheTTL)
	attempts := int(l.attempts.Load())
	res := Result{Identity: id, Attempts: attempts, Cached: src != cachemanager.SourceLoad}
	if err != nil {
		res.Err = newFetchError(id, attempts, err)
		return res
	}
	res.Record = rec
	return res
}

// FetchBatch looks up every identity and returns results in input order.
// One failed lookup never affects the others.
func (p *Provider) FetchBatch(ctx context.Context, ids []card.Identity) []Result {
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = p.Fetch(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Forget drops cached records so later lookups hit the source again.
// Batches already in progress keep their pinned records.
func (p *Provider) Forget(ctx context.Context) {
	p.store.Flush(ctx)
}

// CacheStats reports cache counters.
func (p *Provider) CacheStats() cachemanager.Stats {
	return p.cache.Stats()
}

// load runs on a cache miss: fetch in the requested language, then fall
// back to the default language with a warning.
func (p *Provider) load(ctx context.Context, l *lookup) (card.Record, error) {
	rec, err := p.fetchOne(ctx, l, l.id)
	if err == nil || l.id.Lang() == p.opts.FallbackLanguage || !errors.Is(err, ErrNotFound) {
		return rec, err
	}

	fallback := l.id.WithLanguage(p.opts.FallbackLanguage)
	log.Warn(log.CatData, "Language unavailable, falling back", "card", l.id.String(), "lang", l.id.Lang(), "fallback", fallback.Lang())
	rec, err = p.fetchOne(ctx, l, fallback)
	if err != nil {
		return rec, err
	}
	rec.Identity = l.id
	return rec.WithWarning(fmt.Sprintf("no %q printing of %s; using %q text", l.id.Lang(), l.id.Name, fallback.Lang())), nil
}

func (p *Provider) fetchOne(ctx context.Context, l *lookup, id card.Identity) (card.Record, error) {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     p.opts.BackoffInitial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         p.opts.BackoffMax,
	}
	eb.Reset()

	op := func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		l.attempts.Add(1)

		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
		defer cancel()

		raw, err := p.src.Lookup(attemptCtx, id)
		switch {
		case err == nil:
			return raw, nil
		case ctx.Err() != nil:
			return nil, backoff.Permanent(ctx.Err())
		case !IsTransient(err):
			return nil, backoff.Permanent(err)
		}
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			return nil, backoff.RetryAfter(int((se.RetryAfter + time.Second - 1) / time.Second))
		}
		return nil, err
	}

	bound := time.Duration(p.opts.MaxAttempts) * (p.opts.AttemptTimeout + p.opts.BackoffMax)
	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(bound),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn(log.CatData, "Lookup failed, retrying", "card", id.String(), "attempt", l.attempts.Load(), "wait", wait, "error", err)
		}),
	)
	if err != nil {
		log.ErrorErr(log.CatData, "Lookup failed", err, "card", id.String(), "attempts", l.attempts.Load())
		return card.Record{}, err
	}

	rec, err := Normalize(raw, id)
	if err != nil {
		return card.Record{}, err
	}
	log.Debug(log.CatData, "Fetched card", "card", id.String(), "attempts", l.attempts.Load())
	return rec, nil
}

// Batch pins every record fetched through it for its lifetime, so a batch
// sees one consistent view of each card even if the shared cache expires
// the entry mid-batch.
type Batch struct {
	p      *Provider
	mu     sync.Mutex
	pinned map[string]card.Record
}

// Batch starts a pinned view over the provider.
func (p *Provider) Batch() *Batch {
	return &Batch{p: p, pinned: map[string]card.Record{}}
}

// Fetch looks up one card, preferring records already pinned by the batch.
func (b *Batch) Fetch(ctx context.Context, id card.Identity) Result {
	key := cacheKey(ctx, id)
	b.mu.Lock()
	rec, ok := b.pinned[key]
	b.mu.Unlock()
	if ok {
		return Result{Identity: id, Record: rec, Cached: true}
	}

	res := b.p.Fetch(ctx, id)
	if res.Err == nil {
		b.mu.Lock()
		b.pinned[key] = res.Record
		b.mu.Unlock()
	}
	return res
}

// FetchBatch is Provider.FetchBatch through the pinned view.
func (b *Batch) FetchBatch(ctx context.Context, ids []card.Identity) []Result {
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(b.p.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = b.Fetch(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
