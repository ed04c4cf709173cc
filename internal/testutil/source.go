package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/scryfall"
)

// Step is one scripted Lookup outcome.
type Step struct {
	JSON []byte
	Err  error
}

// Return is a successful step.
func Return(raw []byte) Step { return Step{JSON: raw} }

// Fail is a failing step.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedSource is a scryfall.Source serving scripted responses by card
// name. Each call for a name consumes the next step; the last step repeats.
// Unknown names are not found.
type ScriptedSource struct {
	mu    sync.Mutex
	steps map[string][]Step
	calls map[string]int
	total int
	order scryfall.Order
}

var _ scryfall.Source = (*ScriptedSource)(nil)

// NewScriptedSource creates an empty source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{steps: map[string][]Step{}, calls: map[string]int{}}
}

// Card serves CardJSON(name, opts...) for every lookup of name.
func (s *ScriptedSource) Card(name string, opts ...CardOption) *ScriptedSource {
	return s.Script(name, Return(CardJSON(name, opts...)))
}

// Script serves steps for successive lookups of name.
func (s *ScriptedSource) Script(name string, steps ...Step) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[card.NormalizeName(name)] = steps
	return s
}

// Lookup implements scryfall.Source.
func (s *ScriptedSource) Lookup(ctx context.Context, id card.Identity) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := card.NormalizeName(id.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.order, _ = scryfall.OrderFrom(ctx)
	n := s.calls[key]
	s.calls[key] = n + 1

	steps := s.steps[key]
	if len(steps) == 0 {
		return nil, scryfall.ErrNotFound
	}
	step := steps[min(n, len(steps)-1)]
	return step.JSON, step.Err
}

// Calls returns the number of lookups made for name.
func (s *ScriptedSource) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[card.NormalizeName(name)]
}

// LastOrder returns the search order of the latest lookup.
func (s *ScriptedSource) LastOrder() scryfall.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// Total returns the number of lookups made.
func (s *ScriptedSource) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Provider returns a provider over s tuned for tests: no rate limit
// waiting and millisecond backoff.
func (s *ScriptedSource) Provider() *scryfall.Provider {
	return scryfall.New(s, FastProviderOptions())
}

// FastProviderOptions keeps retry tests quick.
func FastProviderOptions() scryfall.Options {
	return scryfall.Options{
		RequestsPerSecond: 10000,
		Burst:             100,
		MaxAttempts:       3,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
	}
}
