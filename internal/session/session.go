// Package session owns the lifetime of one open editor document.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/log"
)

// ErrNotOpen is returned by Draw and Save when the session holds no document.
var ErrNotOpen = errors.New("session has no open document")

// Session is the handle to at most one open document. Close is idempotent
// and safe to defer unconditionally, including after a failed Open.
type Session struct {
	ed           editor.Editor
	templatePath string

	mu     sync.Mutex
	handle editor.Handle
	open   bool
}

// Open opens templatePath in ed. The returned session is never nil; when
// err is non-nil it holds no document and Close is a no-op.
func Open(ctx context.Context, ed editor.Editor, templatePath string) (*Session, error) {
	s := &Session{ed: ed, templatePath: templatePath}
	h, err := ed.OpenDocument(ctx, templatePath)
	if err != nil {
		return s, err
	}
	s.handle, s.open = h, true
	return s, nil
}

// IsOpen reports whether the session still holds its document.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Handle returns the document handle, empty when nothing is open.
func (s *Session) Handle() editor.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Draw applies one layer to the document.
func (s *Session) Draw(ctx context.Context, spec editor.LayerSpec) error {
	h, err := s.current()
	if err != nil {
		return err
	}
	return s.ed.DrawLayer(ctx, h, spec)
}

// Save exports the document to outputPath, creating parent directories.
func (s *Session) Save(ctx context.Context, outputPath string, ft editor.Filetype) error {
	ft, err := editor.ParseFiletype(string(ft))
	if err != nil {
		return &editor.DocumentError{Op: "export", Path: outputPath, Err: err}
	}
	h, err := s.current()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return &editor.DocumentError{Op: "export", Path: outputPath, Err: fmt.Errorf("creating output directory: %w", err)}
	}
	return s.ed.ExportDocument(ctx, h, outputPath, ft)
}

// Close releases the document exactly once. Later calls return nil. The
// session is marked closed even when the editor reports an error, so a
// failed close is never retried against a stale handle.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	h := s.handle
	s.open = false
	s.handle = ""
	s.mu.Unlock()

	if err := s.ed.CloseDocument(ctx, h); err != nil {
		log.ErrorErr(log.CatEditor, "closing document", err, "template", s.templatePath, "handle", h)
		return err
	}
	return nil
}

func (s *Session) current() (editor.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return "", ErrNotOpen
	}
	return s.handle, nil
}
