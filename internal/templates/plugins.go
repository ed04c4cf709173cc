package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/settings"
)

// ManifestFile is the file name that marks a plugin directory.
const ManifestFile = "manifest.yaml"

// Manifest is the root structure of a plugin's manifest.yaml.
type Manifest struct {
	Name      string        `yaml:"name"`
	Templates []TemplateDef `yaml:"templates"`
}

// TemplateDef defines one plugin template. Paths are relative to the
// plugin directory.
type TemplateDef struct {
	ID          string   `yaml:"id"`          // Unique across all templates
	Name        string   `yaml:"name"`        // Display name
	Layouts     []string `yaml:"layouts"`     // Layout classes, e.g. "normal", "saga"
	Document    string   `yaml:"document"`    // Optional template document
	Script      string   `yaml:"script"`      // Lua file defining draw(doc, card, cfg)
	Suffix      string   `yaml:"suffix"`      // Output file name suffix
	Description string   `yaml:"description"` // Markdown shown by "templates show"
	Settings    string   `yaml:"settings"`    // Optional option schema (JSON or YAML)
	Default     bool     `yaml:"default"`     // Default for its layouts unless config says otherwise
}

// loadPlugins loads every <dir>/<plugin>/manifest.yaml. A missing directory
// means no plugins. Any invalid manifest, script or schema fails the whole
// load so a reload never publishes a partial plugin set.
func loadPlugins(dir string) ([]entry, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugins directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugins directory %s is not a directory", dir)
	}

	dirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading plugins directory %s: %w", dir, err)
	}

	var entries []entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, d.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFile)
		if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
			log.Debug(log.CatTemplate, "skipping directory without manifest", "dir", pluginDir)
			continue
		}
		loaded, err := loadPlugin(d.Name(), pluginDir, manifestPath)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", d.Name(), err)
		}
		entries = append(entries, loaded...)
	}
	return entries, nil
}

func loadPlugin(plugin, pluginDir, manifestPath string) ([]entry, error) {
	content, err := os.ReadFile(manifestPath) //nolint:gosec // G304: plugin paths come from config
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	if len(m.Templates) == 0 {
		return nil, fmt.Errorf("%s declares no templates", manifestPath)
	}

	entries := make([]entry, 0, len(m.Templates))
	for _, def := range m.Templates {
		e, err := buildPluginTemplate(plugin, pluginDir, def)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", def.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func buildPluginTemplate(plugin, pluginDir string, def TemplateDef) (entry, error) {
	if def.ID == "" {
		return entry{}, fmt.Errorf("id is required")
	}
	if def.Script == "" {
		return entry{}, fmt.Errorf("script is required")
	}
	if len(def.Layouts) == 0 {
		return entry{}, fmt.Errorf("at least one layout is required")
	}

	layouts := make([]card.LayoutClass, 0, len(def.Layouts))
	for _, l := range def.Layouts {
		class := card.LayoutClass(l)
		if !slices.Contains(card.KnownClasses, class) {
			return entry{}, fmt.Errorf("unknown layout %q", l)
		}
		layouts = append(layouts, class)
	}

	desc := &Descriptor{
		ID:            def.ID,
		Name:          def.Name,
		Plugin:        plugin,
		Layouts:       layouts,
		Default:       def.Default,
		Suffix:        def.Suffix,
		Description:   def.Description,
		PluginSource:  filepath.Join(pluginDir, def.Script),
		HotReloadable: true,
	}
	if desc.Name == "" {
		desc.Name = def.ID
	}
	if def.Document != "" {
		desc.DocumentPath = filepath.Join(pluginDir, def.Document)
		if _, err := os.Stat(desc.DocumentPath); err != nil {
			return entry{}, fmt.Errorf("document: %w", err)
		}
	}

	if def.Settings != "" {
		path := filepath.Join(pluginDir, def.Settings)
		data, err := os.ReadFile(path) //nolint:gosec // G304: plugin paths come from config
		if err != nil {
			return entry{}, fmt.Errorf("settings: %w", err)
		}
		opts, err := settings.ParseSchema(path, data)
		if err != nil {
			return entry{}, err
		}
		desc.Options = opts
	}

	source, err := os.ReadFile(desc.PluginSource) //nolint:gosec // G304: plugin paths come from config
	if err != nil {
		return entry{}, fmt.Errorf("script: %w", err)
	}
	tmpl, err := CompileLua(def.ID, desc.PluginSource, string(source))
	if err != nil {
		return entry{}, err
	}
	return entry{desc: desc, tmpl: tmpl}, nil
}
