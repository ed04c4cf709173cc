// Package config provides the application configuration for cardsmith:
// where art, plugins and outputs live, how card data is fetched, which
// editor backend renders documents, and the ambient tracing/history knobs.
// Per-card render settings are not part of this package; see settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/paths"
)

// Config holds all configuration options for cardsmith.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Data      DataConfig      `mapstructure:"data"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Render    RenderConfig    `mapstructure:"render"`
	Editor    EditorConfig    `mapstructure:"editor"`
	History   HistoryConfig   `mapstructure:"history"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Flags     map[string]bool `mapstructure:"flags"`
}

// PathsConfig locates inputs and outputs on disk.
type PathsConfig struct {
	ArtDir      string `mapstructure:"art_dir"`      // Art images picked up by "render all"
	OutDir      string `mapstructure:"out_dir"`      // Rendered files
	PluginsDir  string `mapstructure:"plugins_dir"`  // Template plugins (manifest.yaml + Lua)
	SettingsDir string `mapstructure:"settings_dir"` // Option schemas and override layers
}

// DataConfig controls the card data provider.
type DataConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // Shared across all lookups
	Burst             int           `mapstructure:"burst"`
	MaxAttempts       int           `mapstructure:"max_attempts"`    // Including the first try
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"` // Per HTTP attempt
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Concurrency       int           `mapstructure:"concurrency"` // In-flight lookups for batch fetches
	FallbackLanguage  string        `mapstructure:"fallback_language"`
}

// TemplatesConfig controls template resolution.
type TemplatesConfig struct {
	// HotReload re-reads plugin sources on every resolution.
	HotReload bool `mapstructure:"hot_reload"`

	// Defaults maps a layout class to the template ID used when a job does
	// not request one.
	Defaults map[string]string `mapstructure:"defaults"`
}

// RenderConfig holds batch policy that is not a per-card setting.
type RenderConfig struct {
	StopOnFailure bool `mapstructure:"stop_on_failure"`
	SkipFailed    bool `mapstructure:"skip_failed"` // Never ask about failures; overrides the APP.RENDER setting when true
	QueueSize     int  `mapstructure:"queue_size"`
}

// EditorConfig selects the document editor backend.
type EditorConfig struct {
	Backend string        `mapstructure:"backend"` // "raster" (default) or "bridge"
	Command string        `mapstructure:"command"` // Bridge executable
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"` // Per bridge call
}

// HistoryConfig locates the batch report database.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TracingConfig configures OpenTelemetry tracing of batches and jobs.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // "none", "file", "stdout", "otlp"
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Editor backends.
const (
	BackendRaster = "raster"
	BackendBridge = "bridge"
)

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	dataDir := paths.DataDir()
	return Config{
		Paths: PathsConfig{
			ArtDir:      "art",
			OutDir:      "out",
			PluginsDir:  filepath.Join(paths.ConfigDir(), "plugins"),
			SettingsDir: filepath.Join(paths.ConfigDir(), "settings"),
		},
		Data: DataConfig{
			BaseURL:           "https://api.scryfall.com",
			UserAgent:         "cardsmith/1.0",
			RequestsPerSecond: 20,
			Burst:             1,
			MaxAttempts:       3,
			AttemptTimeout:    10 * time.Second,
			BackoffInitial:    500 * time.Millisecond,
			BackoffMax:        5 * time.Second,
			CacheTTL:          time.Hour,
			Concurrency:       4,
			FallbackLanguage:  "en",
		},
		Templates: TemplatesConfig{
			Defaults: map[string]string{},
		},
		Render: RenderConfig{
			QueueSize: 500,
		},
		Editor: EditorConfig{
			Backend: BackendRaster,
			Timeout: 2 * time.Minute,
		},
		History: HistoryConfig{
			DBPath: filepath.Join(dataDir, "history.db"),
		},
		Tracing: TracingConfig{
			Exporter:     "file",
			FilePath:     filepath.Join(dataDir, "traces", "traces.jsonl"),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration and returns the first problem.
func Validate(cfg Config) error {
	if err := ValidateData(cfg.Data); err != nil {
		return err
	}
	if err := ValidateEditor(cfg.Editor); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	if cfg.Render.QueueSize < 0 {
		return fmt.Errorf("render.queue_size must not be negative, got %d", cfg.Render.QueueSize)
	}
	for layout, id := range cfg.Templates.Defaults {
		if id == "" {
			return fmt.Errorf("templates.defaults.%s must name a template", layout)
		}
	}
	return nil
}

// ValidateData checks data provider limits.
func ValidateData(d DataConfig) error {
	if d.BaseURL == "" {
		return fmt.Errorf("data.base_url is required")
	}
	if d.RequestsPerSecond <= 0 {
		return fmt.Errorf("data.requests_per_second must be positive, got %v", d.RequestsPerSecond)
	}
	if d.MaxAttempts < 1 {
		return fmt.Errorf("data.max_attempts must be at least 1, got %d", d.MaxAttempts)
	}
	if d.AttemptTimeout <= 0 {
		return fmt.Errorf("data.attempt_timeout must be positive, got %v", d.AttemptTimeout)
	}
	if d.BackoffMax < d.BackoffInitial {
		return fmt.Errorf("data.backoff_max (%v) must not be below data.backoff_initial (%v)", d.BackoffMax, d.BackoffInitial)
	}
	if d.Concurrency < 1 {
		return fmt.Errorf("data.concurrency must be at least 1, got %d", d.Concurrency)
	}
	return nil
}

// ValidateEditor checks the editor backend selection.
func ValidateEditor(e EditorConfig) error {
	switch e.Backend {
	case "", BackendRaster:
		return nil
	case BackendBridge:
		if e.Command == "" {
			return fmt.Errorf("editor.command is required when backend is %q", BackendBridge)
		}
		return nil
	default:
		return fmt.Errorf("editor.backend must be %q or %q, got %q", BackendRaster, BackendBridge, e.Backend)
	}
}

// ValidateTracing checks tracing configuration.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	switch tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# cardsmith configuration

paths:
  art_dir: art        # Images picked up by "cardsmith render all"
  out_dir: out        # Rendered cards are written here
  # plugins_dir: ~/.config/cardsmith/plugins
  # settings_dir: ~/.config/cardsmith/settings

# Card data lookups
data:
  base_url: https://api.scryfall.com
  requests_per_second: 20   # Shared limit across every lookup
  max_attempts: 3           # Transient failures are retried up to this many tries
  attempt_timeout: 10s
  backoff_initial: 500ms
  backoff_max: 5s
  cache_ttl: 1h
  concurrency: 4
  fallback_language: en     # Used when a card has no printing in the requested language

templates:
  hot_reload: false   # Re-read plugins on every lookup (template development)
  # Default template per layout class
  # defaults:
  #   normal: borderless
  #   planeswalker: normal

render:
  stop_on_failure: false   # Skip every remaining job after the first failure
  skip_failed: false       # Record failures without asking

# Document editor backend: "raster" renders offline, "bridge" drives an
# external editor through an automation bridge process.
editor:
  backend: raster
  # command: /usr/local/bin/editor-bridge
  # args: ["--headless"]
  # timeout: 2m

# history:
#   db_path: ~/.cardsmith/history.db

# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.cardsmith/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# Feature flags
# flags:
#   batch-history: true    # Record batch reports in SQLite
#   template-watch: true   # Reload templates when plugin files change
#   lua-templates: true    # Load Lua plugin templates
`
}

// WriteDefaultConfig creates a config file at configPath with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

// Expanded returns a copy with "~" expanded in every path field.
func (c Config) Expanded() Config {
	c.Paths.ArtDir = paths.Expand(c.Paths.ArtDir)
	c.Paths.OutDir = paths.Expand(c.Paths.OutDir)
	c.Paths.PluginsDir = paths.Expand(c.Paths.PluginsDir)
	c.Paths.SettingsDir = paths.Expand(c.Paths.SettingsDir)
	c.History.DBPath = paths.Expand(c.History.DBPath)
	c.Tracing.FilePath = paths.Expand(c.Tracing.FilePath)
	return c
}
