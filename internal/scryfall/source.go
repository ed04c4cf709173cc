// Package scryfall fetches card data from a Scryfall-compatible API under a
// shared rate limit, with bounded retries, a read-through cache and
// language fallback.
package scryfall

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/zjrosen/cardsmith/internal/card"
)

// Source looks up one card object by identity. Implementations return
// ErrNotFound or ErrAmbiguous for permanent misses and any other error for
// failures worth retrying (see IsTransient).
type Source interface {
	Lookup(ctx context.Context, id card.Identity) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id card.Identity) ([]byte, error)

// Lookup calls f.
func (f SourceFunc) Lookup(ctx context.Context, id card.Identity) ([]byte, error) {
	return f(ctx, id)
}

// HTTPSource queries the Scryfall REST API.
type HTTPSource struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client

	// Order used when the context carries none (see WithOrder).
	Order Order
}

// maxBody bounds a single response read.
const maxBody = 8 << 20

// Lookup fetches the card object for id. With a set and collector number
// the printing is fetched directly; otherwise an exact-name search picks the
// first playable printing.
func (s *HTTPSource) Lookup(ctx context.Context, id card.Identity) ([]byte, error) {
	if id.Set != "" && id.Number != "" {
		return s.lookupNumbered(ctx, id)
	}
	return s.search(ctx, id)
}

func (s *HTTPSource) lookupNumbered(ctx context.Context, id card.Identity) ([]byte, error) {
	u := fmt.Sprintf("%s/cards/%s/%s", strings.TrimRight(s.BaseURL, "/"),
		url.PathEscape(strings.ToLower(id.Set)), url.PathEscape(id.Number))
	if id.Lang() != card.DefaultLanguage {
		u += "/" + url.PathEscape(id.Lang())
	}
	body, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !Playable(gjson.ParseBytes(body)) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return body, nil
}

func (s *HTTPSource) search(ctx context.Context, id card.Identity) ([]byte, error) {
	q := fmt.Sprintf(`!"%s" lang:%s`, id.Name, id.Lang())
	if id.Set != "" {
		q += " set:" + strings.ToLower(id.Set)
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("unique", "prints")
	params.Set("include_extras", "true")
	order, ok := OrderFrom(ctx)
	if !ok {
		order = s.Order
	}
	if order.Sorting != "" {
		params.Set("order", order.Sorting)
	}
	params.Set("dir", order.dir())

	body, err := s.get(ctx, strings.TrimRight(s.BaseURL, "/")+"/cards/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return pickPrinting(body, id)
}

// pickPrinting chooses the first playable printing whose name (or a face
// name) matches id. When nothing matches exactly but every playable result
// is the same card, that card is used; several different cards are
// ambiguous.
func pickPrinting(body []byte, id card.Identity) ([]byte, error) {
	want := card.NormalizeName(id.Name)
	var playable []gjson.Result
	names := map[string]bool{}
	for _, c := range gjson.GetBytes(body, "data").Array() {
		if !Playable(c) {
			continue
		}
		if matchesName(c, want) {
			return []byte(c.Raw), nil
		}
		playable = append(playable, c)
		names[card.NormalizeName(c.Get("name").String())] = true
	}
	switch {
	case len(playable) == 0:
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	case len(names) > 1:
		return nil, fmt.Errorf("%s matched %d cards: %w", id, len(names), ErrAmbiguous)
	default:
		return []byte(playable[0].Raw), nil
	}
}

func matchesName(c gjson.Result, want string) bool {
	if card.NormalizeName(c.Get("name").String()) == want ||
		card.NormalizeName(c.Get("printed_name").String()) == want {
		return true
	}
	for _, f := range c.Get("card_faces").Array() {
		if card.NormalizeName(f.Get("name").String()) == want {
			return true
		}
	}
	return false
}

func (s *HTTPSource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	default:
		return nil, &StatusError{Code: resp.StatusCode, URL: u, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}
}

func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
