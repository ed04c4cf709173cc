// Package flags provides read-only feature flags loaded from configuration.
// Unknown flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/cardsmith/internal/log"
)

const (
	// FlagBatchHistory records every finished batch report in SQLite.
	FlagBatchHistory = "batch-history"

	// FlagTemplateWatch reloads the template registry when plugin files change.
	FlagTemplateWatch = "template-watch"

	// FlagLuaTemplates loads Lua plugin templates. When off only the
	// built-in templates are registered.
	FlagLuaTemplates = "lua-templates"
)

// Known lists every flag cardsmith reads.
var Known = []string{FlagBatchHistory, FlagTemplateWatch, FlagLuaTemplates}

// Registry holds flag state. It is not modified after New.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. A nil map disables every flag.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: maps.Clone(flags)}
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	for name := range r.flags {
		if !slices.Contains(Known, name) {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags))
	return r
}

// Enabled reports whether name is on. Nil-safe.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of every configured flag.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
