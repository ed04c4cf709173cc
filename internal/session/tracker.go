package session

import (
	"context"
	"errors"
	"sync"

	"github.com/zjrosen/cardsmith/internal/editor"
)

// ErrSessionBusy is returned when a document is opened while another is
// still open.
var ErrSessionBusy = errors.New("another document is already open")

// Tracker decorates an Editor and enforces a single open document. It
// records the highest number of simultaneously open documents it has seen.
type Tracker struct {
	editor.Editor

	mu      sync.Mutex
	open    map[editor.Handle]struct{}
	maxOpen int
	opened  int
	closed  int
}

// NewTracker wraps ed.
func NewTracker(ed editor.Editor) *Tracker {
	return &Tracker{Editor: ed, open: make(map[editor.Handle]struct{})}
}

// OpenDocument opens a document unless one is already open.
func (t *Tracker) OpenDocument(ctx context.Context, templatePath string) (editor.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.open) > 0 {
		return "", &editor.DocumentError{Op: "open", Path: templatePath, Err: ErrSessionBusy}
	}
	h, err := t.Editor.OpenDocument(ctx, templatePath)
	if err != nil {
		return "", err
	}
	t.open[h] = struct{}{}
	t.opened++
	t.maxOpen = max(t.maxOpen, len(t.open))
	return h, nil
}

// CloseDocument closes h. The handle is forgotten even if the editor
// fails to close it.
func (t *Tracker) CloseDocument(ctx context.Context, h editor.Handle) error {
	t.mu.Lock()
	if _, ok := t.open[h]; ok {
		delete(t.open, h)
		t.closed++
	}
	t.mu.Unlock()
	return t.Editor.CloseDocument(ctx, h)
}

// Open returns the number of documents currently open.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// MaxConcurrent returns the highest number of documents open at once.
func (t *Tracker) MaxConcurrent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxOpen
}

// Counts returns how many documents were opened and closed.
func (t *Tracker) Counts() (opened, closed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened, t.closed
}
