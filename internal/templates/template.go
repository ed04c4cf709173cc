// Package templates maps card layout classes to render templates. Built-in
// templates are compiled in; plugin templates are loaded from manifest
// files with Lua draw scripts. The Registry serves immutable snapshots that
// are swapped atomically on reload.
package templates

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/settings"
)

// Descriptor describes a registered template. Descriptors are immutable and
// replaced wholesale on reload.
type Descriptor struct {
	ID          string
	Name        string
	Plugin      string // Empty for built-in templates
	Layouts     []card.LayoutClass
	Default     bool   // Manifest asks to be the default for its layouts
	Suffix      string // Appended to output file names
	Description string // Markdown

	DocumentPath  string // Template document opened in the editor; empty for a blank canvas
	PluginSource  string // Lua script path for plugin templates
	HotReloadable bool

	// Options extend the base settings schema for this template.
	Options []settings.Option
}

// Builtin reports whether the template is compiled in.
func (d *Descriptor) Builtin() bool { return d.Plugin == "" }

// Supports reports whether the template declares layout l.
func (d *Descriptor) Supports(l card.LayoutClass) bool {
	return slices.Contains(d.Layouts, l)
}

// Schema returns base extended with the template's own options.
func (d *Descriptor) Schema(base *settings.Schema) (*settings.Schema, error) {
	if len(d.Options) == 0 {
		return base, nil
	}
	s, err := base.Extend(d.Options...)
	if err != nil {
		return nil, fmt.Errorf("template %s settings: %w", d.ID, err)
	}
	return s, nil
}

// OverrideFile returns the name of the template override layer file inside
// the settings directory.
func (d *Descriptor) OverrideFile() string {
	return "template." + strings.ReplaceAll(d.ID, "/", "_") + ".yaml"
}

// Canvas is the drawing surface handed to a template: the open document.
type Canvas interface {
	Draw(ctx context.Context, spec editor.LayerSpec) error
}

// DrawInput is everything a template reads while drawing.
type DrawInput struct {
	Record  card.Record
	Config  *settings.EffectiveConfig
	ArtPath string
}

// Template draws a card onto an open document.
type Template interface {
	Draw(ctx context.Context, c Canvas, in DrawInput) error
}

// TemplateFunc adapts a function to Template.
type TemplateFunc func(ctx context.Context, c Canvas, in DrawInput) error

// Draw calls f.
func (f TemplateFunc) Draw(ctx context.Context, c Canvas, in DrawInput) error {
	return f(ctx, c, in)
}

// NoTemplateError means no template can render the layout.
type NoTemplateError struct {
	Layout card.LayoutClass
	ID     string // Requested id, if any
}

func (e *NoTemplateError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("no template %q", e.ID)
	}
	return fmt.Sprintf("no template for layout %s", e.Layout)
}

// IncompatibleTemplateError means the requested template does not declare
// the card's layout.
type IncompatibleTemplateError struct {
	ID        string
	Layout    card.LayoutClass
	Supported []card.LayoutClass
}

func (e *IncompatibleTemplateError) Error() string {
	names := make([]string, len(e.Supported))
	for i, l := range e.Supported {
		names[i] = string(l)
	}
	return fmt.Sprintf("template %q does not support layout %s (supports %s)", e.ID, e.Layout, strings.Join(names, ", "))
}
