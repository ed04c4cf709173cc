// Package editor defines the automation surface of the external document
// editor that renders cards, plus two backends: an offline raster editor
// and a bridge to an external automation process.
//
// Editors are single-threaded: callers must not drive two documents at once.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Handle identifies an open document.
type Handle string

// Editor is the automation interface the render pipeline drives.
type Editor interface {
	OpenDocument(ctx context.Context, templatePath string) (Handle, error)
	DrawLayer(ctx context.Context, h Handle, spec LayerSpec) error
	ExportDocument(ctx context.Context, h Handle, path string, ft Filetype) error
	CloseDocument(ctx context.Context, h Handle) error
}

// Filetype is an export format.
type Filetype string

const (
	FiletypeJPG Filetype = "jpg"
	FiletypePNG Filetype = "png"
	FiletypePSD Filetype = "psd"
)

// ErrUnsupportedFiletype is returned for unknown export formats.
var ErrUnsupportedFiletype = errors.New("unsupported filetype")

// ParseFiletype validates an export format name.
func ParseFiletype(s string) (Filetype, error) {
	switch ft := Filetype(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); ft {
	case FiletypeJPG, FiletypePNG, FiletypePSD:
		return ft, nil
	case "jpeg":
		return FiletypeJPG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFiletype, s)
	}
}

// Ext returns the file extension including the dot.
func (f Filetype) Ext() string { return "." + string(f) }

// LayerKind selects how a LayerSpec is applied.
type LayerKind string

const (
	LayerImage      LayerKind = "image"      // Paste Source scaled to fill Rect
	LayerFill       LayerKind = "fill"       // Paint Rect with Color
	LayerText       LayerKind = "text"       // Set Text on the named layer
	LayerVisibility LayerKind = "visibility" // Show or hide the named layer
)

// Rect is a pixel rectangle in document coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// LayerSpec describes one drawing operation.
type LayerSpec struct {
	Name    string    `json:"name"`
	Kind    LayerKind `json:"kind"`
	Rect    Rect      `json:"rect"`
	Source  string    `json:"source,omitempty"`
	Color   string    `json:"color,omitempty"` // #rrggbb
	Text    string    `json:"text,omitempty"`
	Stroke  int       `json:"stroke,omitempty"` // Text outline width in pixels
	Visible bool      `json:"visible"`
}

// Validate checks the fields its Kind requires.
func (s LayerSpec) Validate() error {
	switch s.Kind {
	case LayerImage:
		if s.Source == "" {
			return fmt.Errorf("layer %q: image layer needs a source", s.Name)
		}
		if s.Rect.Empty() {
			return fmt.Errorf("layer %q: image layer needs a rect", s.Name)
		}
	case LayerFill:
		if _, err := ParseColor(s.Color); err != nil {
			return fmt.Errorf("layer %q: %w", s.Name, err)
		}
		if s.Rect.Empty() {
			return fmt.Errorf("layer %q: fill layer needs a rect", s.Name)
		}
	case LayerText, LayerVisibility:
		if s.Name == "" {
			return fmt.Errorf("%s layer needs a name", s.Kind)
		}
	default:
		return fmt.Errorf("layer %q: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// DocumentError is a failure inside the editor while handling a document.
type DocumentError struct {
	Op   string
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("editor %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("editor %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

var (
	// ErrNoDocument is returned when a handle does not name an open document.
	ErrNoDocument = errors.New("no such document")

	// ErrDocumentOpen is returned when a single-document editor already
	// holds a document.
	ErrDocumentOpen = errors.New("a document is already open")
)
