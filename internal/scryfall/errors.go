package scryfall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zjrosen/cardsmith/internal/card"
)

var (
	// ErrNotFound means the source has no playable printing for the identity.
	ErrNotFound = errors.New("card not found")

	// ErrAmbiguous means the identity matched several different cards.
	ErrAmbiguous = errors.New("ambiguous card name")
)

// StatusError is an unexpected HTTP status from the source.
type StatusError struct {
	Code       int
	URL        string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

// Transient reports whether retrying may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsTransient reports whether err is worth retrying: network failures,
// attempt timeouts, rate-limit rejections and server errors.
func IsTransient(err error) bool {
	var se *StatusError
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAmbiguous), errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &se):
		return se.Transient()
	default:
		return true
	}
}

// Kind classifies a FetchError.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindAmbiguous Kind = "ambiguous"
	KindExhausted Kind = "retries_exhausted"
	KindRejected  Kind = "rejected" // Permanent non-OK status
	KindInvalid   Kind = "invalid_response"
	KindCancelled Kind = "cancelled"
)

// FetchError is the terminal error for one card lookup.
type FetchError struct {
	Identity card.Identity
	Kind     Kind
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %s after %d attempt(s): %v", e.Identity, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(id card.Identity, attempts int, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindExhausted
	var se *StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrAmbiguous):
		kind = KindAmbiguous
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, errInvalid):
		kind = KindInvalid
	case errors.As(err, &se) && !se.Transient():
		kind = KindRejected
	}
	return &FetchError{Identity: id, Kind: kind, Attempts: attempts, Err: err}
}

var errInvalid = errors.New("invalid card data")
