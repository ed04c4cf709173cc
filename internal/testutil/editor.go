package testutil

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/zjrosen/cardsmith/internal/editor"
)

// FakeEditor is an in-memory editor.Editor that records every call and
// tracks how many documents are open at once. Unlike real editors it does
// not refuse a second open, so tests can observe a violation instead of an
// error. Export writes a small placeholder file at the output path.
//
// Failure fields must be set before the editor is used.
type FakeEditor struct {
	FailOpen   error
	FailDraw   error
	FailDrawOn string // Layer name FailDraw applies to; empty means every layer
	PanicOn    string // Layer name whose draw panics
	FailExport error
	FailClose  error

	mu      sync.Mutex
	next    int
	open    map[editor.Handle][]editor.LayerSpec
	maxOpen int
	opened  int
	closed  int
	calls   []string
	exports map[string][]editor.LayerSpec
}

var _ editor.Editor = (*FakeEditor)(nil)

// NewFakeEditor creates a FakeEditor.
func NewFakeEditor() *FakeEditor {
	return &FakeEditor{
		open:    map[editor.Handle][]editor.LayerSpec{},
		exports: map[string][]editor.LayerSpec{},
	}
}

func (e *FakeEditor) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

// OpenDocument implements editor.Editor.
func (e *FakeEditor) OpenDocument(ctx context.Context, templatePath string) (editor.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("open %s", templatePath)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.FailOpen != nil {
		return "", &editor.DocumentError{Op: "open", Path: templatePath, Err: e.FailOpen}
	}
	e.next++
	h := editor.Handle(fmt.Sprintf("doc-%d", e.next))
	e.open[h] = nil
	e.opened++
	e.maxOpen = max(e.maxOpen, len(e.open))
	return h, nil
}

// DrawLayer implements editor.Editor.
func (e *FakeEditor) DrawLayer(ctx context.Context, h editor.Handle, spec editor.LayerSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("draw %s", spec.Name)
	if err := ctx.Err(); err != nil {
		return err
	}
	layers, ok := e.open[h]
	if !ok {
		return &editor.DocumentError{Op: "draw", Err: editor.ErrNoDocument}
	}
	if e.PanicOn != "" && spec.Name == e.PanicOn {
		panic("fake editor: draw " + spec.Name)
	}
	if e.FailDraw != nil && (e.FailDrawOn == "" || e.FailDrawOn == spec.Name) {
		return &editor.DocumentError{Op: "draw", Path: spec.Name, Err: e.FailDraw}
	}
	e.open[h] = append(layers, spec)
	return nil
}

// ExportDocument implements editor.Editor.
func (e *FakeEditor) ExportDocument(ctx context.Context, h editor.Handle, path string, ft editor.Filetype) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("export %s", path)
	if err := ctx.Err(); err != nil {
		return err
	}
	layers, ok := e.open[h]
	if !ok {
		return &editor.DocumentError{Op: "export", Path: path, Err: editor.ErrNoDocument}
	}
	if e.FailExport != nil {
		return &editor.DocumentError{Op: "export", Path: path, Err: e.FailExport}
	}
	if err := os.WriteFile(path, []byte("fake "+string(ft)), 0o600); err != nil {
		return &editor.DocumentError{Op: "export", Path: path, Err: err}
	}
	e.exports[path] = slices.Clone(layers)
	return nil
}

// CloseDocument implements editor.Editor.
func (e *FakeEditor) CloseDocument(_ context.Context, h editor.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("close %s", h)
	if _, ok := e.open[h]; !ok {
		return &editor.DocumentError{Op: "close", Err: editor.ErrNoDocument}
	}
	delete(e.open, h)
	e.closed++
	if e.FailClose != nil {
		return &editor.DocumentError{Op: "close", Err: e.FailClose}
	}
	return nil
}

// Calls returns every call in order, e.g. "open tmpl.png", "draw Name".
func (e *FakeEditor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// MaxOpen returns the most documents ever open at once.
func (e *FakeEditor) MaxOpen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxOpen
}

// OpenNow returns the number of documents currently open.
func (e *FakeEditor) OpenNow() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// Counts returns how many documents were opened and closed.
func (e *FakeEditor) Counts() (opened, closed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened, e.closed
}

// Exported returns the layers drawn into the document exported to path.
func (e *FakeEditor) Exported(path string) ([]editor.LayerSpec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	layers, ok := e.exports[path]
	return layers, ok
}

// LayerNames returns the names of layers.
func LayerNames(layers []editor.LayerSpec) []string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.Name
	}
	return names
}
