package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/zjrosen/cardsmith/internal/log"
)

// Default canvas size used when a template has no document.
const (
	DefaultWidth  = 1500
	DefaultHeight = 2100
)

// RasterEditor renders documents in-process with imaging. Image and fill
// layers are composited onto the canvas; text and visibility layers cannot
// be rasterized here and are recorded in a "<output>.layers.json" sidecar.
// It holds at most one document.
type RasterEditor struct {
	mu  sync.Mutex
	doc *rasterDoc
}

type rasterDoc struct {
	handle   Handle
	path     string
	canvas   *image.NRGBA
	recorded []LayerSpec
}

// NewRasterEditor creates an offline editor.
func NewRasterEditor() *RasterEditor {
	return &RasterEditor{}
}

// OpenDocument loads templatePath as the base image, or a blank white
// canvas when templatePath is empty.
func (e *RasterEditor) OpenDocument(ctx context.Context, templatePath string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", &DocumentError{Op: "open", Path: templatePath, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc != nil {
		return "", &DocumentError{Op: "open", Path: templatePath, Err: ErrDocumentOpen}
	}

	var canvas *image.NRGBA
	switch {
	case templatePath == "":
		canvas = imaging.New(DefaultWidth, DefaultHeight, image.White)
	case strings.EqualFold(filepath.Ext(templatePath), ".psd"):
		return "", &DocumentError{Op: "open", Path: templatePath, Err: fmt.Errorf("layered documents need the bridge editor: %w", ErrUnsupportedFiletype)}
	default:
		img, err := imaging.Open(templatePath)
		if err != nil {
			return "", &DocumentError{Op: "open", Path: templatePath, Err: err}
		}
		canvas = imaging.Clone(img)
	}

	e.doc = &rasterDoc{handle: Handle(uuid.NewString()), path: templatePath, canvas: canvas}
	log.Debug(log.CatEditor, "opened document", "handle", e.doc.handle, "template", templatePath,
		"size", fmt.Sprintf("%dx%d", canvas.Bounds().Dx(), canvas.Bounds().Dy()))
	return e.doc.handle, nil
}

// DrawLayer applies one layer to the open document.
func (e *RasterEditor) DrawLayer(ctx context.Context, h Handle, spec LayerSpec) error {
	if err := ctx.Err(); err != nil {
		return &DocumentError{Op: "draw", Path: spec.Name, Err: err}
	}
	if err := spec.Validate(); err != nil {
		return &DocumentError{Op: "draw", Path: spec.Name, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.lookup(h)
	if err != nil {
		return &DocumentError{Op: "draw", Path: spec.Name, Err: err}
	}

	switch spec.Kind {
	case LayerImage:
		src, err := imaging.Open(spec.Source, imaging.AutoOrientation(true))
		if err != nil {
			return &DocumentError{Op: "draw", Path: spec.Source, Err: err}
		}
		fitted := imaging.Fill(src, spec.Rect.W, spec.Rect.H, imaging.Center, imaging.Lanczos)
		doc.canvas = imaging.Paste(doc.canvas, fitted, image.Pt(spec.Rect.X, spec.Rect.Y))
	case LayerFill:
		c, _ := ParseColor(spec.Color)
		fill := imaging.New(spec.Rect.W, spec.Rect.H, c)
		doc.canvas = imaging.Overlay(doc.canvas, fill, image.Pt(spec.Rect.X, spec.Rect.Y), 1.0)
	default:
		doc.recorded = append(doc.recorded, spec)
	}
	return nil
}

// ExportDocument writes the canvas as jpg or png. Layered psd output is not
// available offline.
func (e *RasterEditor) ExportDocument(ctx context.Context, h Handle, path string, ft Filetype) error {
	if err := ctx.Err(); err != nil {
		return &DocumentError{Op: "export", Path: path, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.lookup(h)
	if err != nil {
		return &DocumentError{Op: "export", Path: path, Err: err}
	}

	var opts []imaging.EncodeOption
	var format imaging.Format
	switch ft {
	case FiletypeJPG:
		format = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(95))
	case FiletypePNG:
		format = imaging.PNG
	default:
		return &DocumentError{Op: "export", Path: path, Err: fmt.Errorf("%w offline: %s", ErrUnsupportedFiletype, ft)}
	}

	f, err := os.Create(path) //nolint:gosec // G304: output path chosen by the render pipeline
	if err != nil {
		return &DocumentError{Op: "export", Path: path, Err: err}
	}
	if err := imaging.Encode(f, doc.canvas, format, opts...); err != nil {
		_ = f.Close()
		return &DocumentError{Op: "export", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &DocumentError{Op: "export", Path: path, Err: err}
	}

	if len(doc.recorded) > 0 {
		data, err := json.MarshalIndent(doc.recorded, "", "  ")
		if err != nil {
			return &DocumentError{Op: "export", Path: path, Err: err}
		}
		if err := os.WriteFile(SidecarPath(path), data, 0o600); err != nil {
			return &DocumentError{Op: "export", Path: path, Err: err}
		}
	}
	log.Debug(log.CatEditor, "exported document", "handle", h, "path", path, "filetype", ft)
	return nil
}

// CloseDocument releases the document.
func (e *RasterEditor) CloseDocument(_ context.Context, h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.lookup(h); err != nil {
		return &DocumentError{Op: "close", Err: err}
	}
	e.doc = nil
	log.Debug(log.CatEditor, "closed document", "handle", h)
	return nil
}

func (e *RasterEditor) lookup(h Handle) (*rasterDoc, error) {
	if e.doc == nil || e.doc.handle != h {
		return nil, fmt.Errorf("%w: %s", ErrNoDocument, h)
	}
	return e.doc, nil
}

// SidecarPath returns where RasterEditor records text and visibility layers
// for an export.
func SidecarPath(exportPath string) string {
	return exportPath + ".layers.json"
}
