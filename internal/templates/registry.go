package templates

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/log"
)

// Options configures a Registry.
type Options struct {
	PluginsDir string

	// Defaults maps a layout class to the template id used when a job does
	// not request one.
	Defaults map[card.LayoutClass]string

	// HotReload reloads plugin sources before every resolution.
	HotReload bool

	// LoadPlugins enables Lua plugin templates. When false only built-in
	// templates register.
	LoadPlugins bool
}

// snapshot is an immutable view of every registered template.
type snapshot struct {
	generation uint64
	entries    []entry
	byID       map[string]entry
}

func newSnapshot(generation uint64, groups ...[]entry) (*snapshot, error) {
	s := &snapshot{generation: generation, byID: map[string]entry{}}
	for _, group := range groups {
		for _, e := range group {
			if prev, dup := s.byID[e.desc.ID]; dup {
				return nil, fmt.Errorf("duplicate template id %q (%s and %s)", e.desc.ID, origin(prev.desc), origin(e.desc))
			}
			s.byID[e.desc.ID] = e
			s.entries = append(s.entries, e)
		}
	}
	return s, nil
}

func origin(d *Descriptor) string {
	if d.Builtin() {
		return "built-in"
	}
	return "plugin " + d.Plugin
}

// Registry resolves layout classes to templates. Readers always see a
// complete snapshot; Reload builds a new one and swaps it in only when
// loading succeeds. Descriptors and templates already handed out stay
// valid after a swap.
type Registry struct {
	opts     Options
	builtins []entry
	current  atomic.Pointer[snapshot]

	mu  sync.Mutex // Serializes reloads
	gen uint64
}

// NewRegistry creates a registry holding only the built-in templates. Call
// Reload to load plugins.
func NewRegistry(opts Options) *Registry {
	r := &Registry{opts: opts, builtins: builtins(), gen: 1}
	snap, err := newSnapshot(r.gen, r.builtins)
	if err != nil {
		panic(err) // built-in ids are fixed
	}
	r.current.Store(snap)
	return r
}

// Reload rebuilds the snapshot from the built-ins and the plugins
// directory. On failure the previous snapshot stays published.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var plugins []entry
	if r.opts.LoadPlugins {
		var err error
		plugins, err = loadPlugins(r.opts.PluginsDir)
		if err != nil {
			return fmt.Errorf("reloading templates: %w", err)
		}
	}
	snap, err := newSnapshot(r.gen+1, r.builtins, plugins)
	if err != nil {
		return fmt.Errorf("reloading templates: %w", err)
	}

	r.gen = snap.generation
	r.current.Store(snap)
	log.Info(log.CatTemplate, "templates loaded", "generation", snap.generation,
		"templates", len(snap.entries), "plugins", len(plugins))
	return nil
}

// Generation counts successful loads, starting at 1 for the built-ins.
func (r *Registry) Generation() uint64 {
	return r.current.Load().generation
}

// Resolve picks the template for a layout class. A requested id must exist
// and declare the layout. Without a request the configured default for the
// layout is used, then a plugin that marks itself default, then the
// built-in template for the layout.
func (r *Registry) Resolve(layout card.LayoutClass, requestedID string) (*Descriptor, Template, error) {
	if r.opts.HotReload {
		if err := r.Reload(); err != nil {
			log.Warn(log.CatTemplate, "hot reload failed, keeping previous templates",
				"generation", r.Generation(), "error", err)
		}
	}
	return r.current.Load().resolve(layout, requestedID, r.opts.Defaults)
}

func (s *snapshot) resolve(layout card.LayoutClass, requestedID string, defaults map[card.LayoutClass]string) (*Descriptor, Template, error) {
	if requestedID != "" {
		e, ok := s.byID[requestedID]
		if !ok {
			return nil, nil, &NoTemplateError{Layout: layout, ID: requestedID}
		}
		if !e.desc.Supports(layout) {
			return nil, nil, &IncompatibleTemplateError{ID: requestedID, Layout: layout, Supported: e.desc.Layouts}
		}
		return e.desc, e.tmpl, nil
	}

	if id := defaults[layout]; id != "" {
		if e, ok := s.byID[id]; ok && e.desc.Supports(layout) {
			return e.desc, e.tmpl, nil
		}
		log.Warn(log.CatTemplate, "configured default template unavailable", "layout", layout, "template", id)
	}

	for _, e := range s.entries {
		if !e.desc.Builtin() && e.desc.Default && e.desc.Supports(layout) {
			return e.desc, e.tmpl, nil
		}
	}

	var fallback *entry
	for i, e := range s.entries {
		if !e.desc.Builtin() || !e.desc.Supports(layout) {
			continue
		}
		if e.desc.ID == NormalID {
			return e.desc, e.tmpl, nil
		}
		if fallback == nil {
			fallback = &s.entries[i]
		}
	}
	if fallback != nil {
		return fallback.desc, fallback.tmpl, nil
	}
	return nil, nil, &NoTemplateError{Layout: layout}
}

// Lookup returns the template registered under id.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	e, ok := r.current.Load().byID[id]
	return e.desc, ok
}

// All returns every registered template ordered by id.
func (r *Registry) All() []*Descriptor {
	snap := r.current.Load()
	out := make([]*Descriptor, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Group lists the templates available for one layout class.
type Group struct {
	Layout    card.LayoutClass
	Templates []*Descriptor
}

// List groups templates by layout class in display order. Within a group
// the built-in normal template comes first, then the rest by name.
func (r *Registry) List() []Group {
	snap := r.current.Load()
	var groups []Group
	for _, layout := range card.KnownClasses {
		var ds []*Descriptor
		for _, e := range snap.entries {
			if e.desc.Supports(layout) {
				ds = append(ds, e.desc)
			}
		}
		if len(ds) == 0 {
			continue
		}
		sort.SliceStable(ds, func(i, j int) bool {
			if (ds[i].ID == NormalID) != (ds[j].ID == NormalID) {
				return ds[i].ID == NormalID
			}
			return ds[i].Name < ds[j].Name
		})
		groups = append(groups, Group{Layout: layout, Templates: ds})
	}
	return groups
}
