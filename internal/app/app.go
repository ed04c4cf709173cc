// Package app is the composition root: it builds every service from the
// application config and exposes the operations the CLI runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/config"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/flags"
	"github.com/zjrosen/cardsmith/internal/history"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/operator"
	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/render"
	"github.com/zjrosen/cardsmith/internal/scryfall"
	"github.com/zjrosen/cardsmith/internal/session"
	"github.com/zjrosen/cardsmith/internal/settings"
	"github.com/zjrosen/cardsmith/internal/templates"
	"github.com/zjrosen/cardsmith/internal/tracing"
	"github.com/zjrosen/cardsmith/internal/watcher"
)

// SchemaDir is the directory under settings_dir holding extra option
// schema files (*.json) merged into the built-in schema.
const SchemaDir = "schema"

// PromptMode selects who answers the pipeline's questions.
type PromptMode int

const (
	PromptAuto    PromptMode = iota // Continue without asking
	PromptConsole                   // Survey prompts on the terminal
	PromptTUI                       // Prompt events answered in the progress view
)

// Options adjust how New wires the services.
type Options struct {
	Prompts       PromptMode
	StopOnFailure bool
	DryRun        bool // Always use the offline raster editor

	// Test seams. Nil values build the real implementation from config.
	Source   scryfall.Source
	Editor   editor.Editor
	Operator render.Operator
}

// App holds every long-lived service.
type App struct {
	cfg   config.Config
	flags *flags.Registry

	schema   *settings.Schema
	layers   render.DirLayers
	provider *scryfall.Provider
	registry *templates.Registry
	tracker  *session.Tracker
	bridge   *editor.BridgeEditor
	tracing  *tracing.Provider
	events   *pubsub.Broker[render.Event]
	orch     *render.Orchestrator
	runner   *render.Runner
	queue    *render.JobQueue
	builder  render.Builder

	historyDB *history.DB
	repo      *history.Repository

	watcher     *watcher.Watcher
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New builds the application from cfg.
func New(cfg config.Config, opts Options) (*App, error) {
	cfg = cfg.Expanded()
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		cfg:    cfg,
		flags:  flags.New(cfg.Flags),
		layers: render.DirLayers(cfg.Paths.SettingsDir),
		events: pubsub.NewBroker[render.Event](pubsub.WithBuffer(256), pubsub.WithDeliveryTimeout(time.Second)),
		queue:  render.NewJobQueue(cfg.Render.QueueSize),
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var err error
	if a.schema, err = loadSchema(cfg.Paths.SettingsDir); err != nil {
		return nil, err
	}

	src := opts.Source
	if src == nil {
		src = &scryfall.HTTPSource{
			BaseURL:   cfg.Data.BaseURL,
			UserAgent: cfg.Data.UserAgent,
			Client:    &http.Client{},
		}
	}
	a.provider = scryfall.New(src, scryfall.Options{
		RequestsPerSecond: cfg.Data.RequestsPerSecond,
		Burst:             cfg.Data.Burst,
		MaxAttempts:       cfg.Data.MaxAttempts,
		AttemptTimeout:    cfg.Data.AttemptTimeout,
		BackoffInitial:    cfg.Data.BackoffInitial,
		BackoffMax:        cfg.Data.BackoffMax,
		CacheTTL:          cfg.Data.CacheTTL,
		Concurrency:       cfg.Data.Concurrency,
		FallbackLanguage:  cfg.Data.FallbackLanguage,
	})

	a.registry = newRegistry(cfg, a.flags)

	ed := opts.Editor
	if ed == nil {
		ed = a.newEditor(opts.DryRun)
	}
	a.tracker = session.NewTracker(ed)

	if a.tracing, err = tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	}); err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	policy := render.Policy{StopOnFailure: opts.StopOnFailure || cfg.Render.StopOnFailure}
	if cfg.Render.SkipFailed {
		policy.SkipFailed = render.Force(true)
	}
	a.orch = render.New(render.Options{
		Schema:    a.schema,
		Layers:    a.layers,
		Data:      a.provider,
		Templates: a.registry,
		Editor:    a.tracker,
		Operator:  a.newOperator(opts),
		Policy:    policy,
		Events:    a.events,
		Tracer:    a.tracing.Tracer(),
	})

	var runnerOpts []render.RunnerOption
	if a.flags.Enabled(flags.FlagBatchHistory) {
		if a.historyDB, err = history.NewDB(cfg.History.DBPath); err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.repo = history.NewRepository(a.historyDB)
		runnerOpts = append(runnerOpts, render.WithReportSink(a.repo))
	}
	a.runner = render.NewRunner(a.orch, runnerOpts...)
	a.builder = render.Builder{OutputDir: cfg.Paths.OutDir}

	if err := os.MkdirAll(cfg.Paths.OutDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	if a.flags.Enabled(flags.FlagTemplateWatch) && a.flags.Enabled(flags.FlagLuaTemplates) {
		if err := a.startWatcher(); err != nil {
			// Rendering still works; templates just need a manual reload.
			log.ErrorErr(log.CatWatcher, "Failed to start plugin watcher", err, "dir", cfg.Paths.PluginsDir)
		}
	}

	ok = true
	return a, nil
}

func loadSchema(settingsDir string) (*settings.Schema, error) {
	base, err := settings.Base()
	if err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(settingsDir, SchemaDir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return base, nil
	}
	log.Debug(log.CatSettings, "Loading schema files", "count", len(files))
	return settings.LoadSchema(base, files...)
}

func newRegistry(cfg config.Config, fl *flags.Registry) *templates.Registry {
	defaults := make(map[card.LayoutClass]string, len(cfg.Templates.Defaults))
	for layout, id := range cfg.Templates.Defaults {
		defaults[card.LayoutClass(layout)] = id
	}
	loadPlugins := fl.Enabled(flags.FlagLuaTemplates)
	r := templates.NewRegistry(templates.Options{
		PluginsDir:  cfg.Paths.PluginsDir,
		Defaults:    defaults,
		HotReload:   cfg.Templates.HotReload && loadPlugins,
		LoadPlugins: loadPlugins,
	})
	if loadPlugins {
		if err := r.Reload(); err != nil {
			log.ErrorErr(log.CatTemplate, "Loading plugins failed; using built-in templates", err,
				"dir", cfg.Paths.PluginsDir)
		}
	}
	return r
}

func (a *App) newEditor(dryRun bool) editor.Editor {
	if dryRun || a.cfg.Editor.Backend != config.BackendBridge {
		log.Debug(log.CatEditor, "Using raster editor", "dry_run", dryRun)
		return editor.NewRasterEditor()
	}
	log.Debug(log.CatEditor, "Using editor bridge", "command", a.cfg.Editor.Command)
	a.bridge = editor.NewBridgeEditor(editor.BridgeConfig{
		Command: a.cfg.Editor.Command,
		Args:    a.cfg.Editor.Args,
		Timeout: a.cfg.Editor.Timeout,
	})
	return a.bridge
}

func (a *App) newOperator(opts Options) render.Operator {
	if opts.Operator != nil {
		return opts.Operator
	}
	switch opts.Prompts {
	case PromptConsole:
		return operator.NewConsole(nil)
	case PromptTUI:
		return operator.NewRelay(a.events)
	default:
		return operator.Auto{}
	}
}

func (a *App) startWatcher() error {
	w, err := watcher.New(watcher.DefaultConfig(a.cfg.Paths.PluginsDir))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.watcher, a.watchCancel, a.watchDone = w, cancel, make(chan struct{})
	go func() {
		defer close(a.watchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				if err := a.registry.Reload(); err != nil {
					log.Warn(log.CatWatcher, "Template reload failed, keeping previous templates",
						"generation", a.registry.Generation(), "error", err)
				}
			}
		}
	}()
	log.Info(log.CatWatcher, "Watching plugins", "dir", a.cfg.Paths.PluginsDir)
	return nil
}

// Config returns the expanded application config.
func (a *App) Config() config.Config { return a.cfg }

// Schema returns the settings schema.
func (a *App) Schema() *settings.Schema { return a.schema }

// Templates returns the template registry.
func (a *App) Templates() *templates.Registry { return a.registry }

// Events returns the render progress broker.
func (a *App) Events() *pubsub.Broker[render.Event] { return a.events }

// Runner returns the batch runner.
func (a *App) Runner() *render.Runner { return a.runner }

// History returns the batch report repository, or nil when batch history
// is off.
func (a *App) History() *history.Repository { return a.repo }

// Sessions returns the document session tracker.
func (a *App) Sessions() *session.Tracker { return a.tracker }

// RenderTarget starts a batch of one job for the art file at path.
func (a *App) RenderTarget(path, templateID string) (*render.Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("art file: %w", err)
	}
	job, err := a.builder.ForTarget(path, templateID)
	if err != nil {
		return nil, err
	}
	return a.runner.Submit([]render.Job{job})
}

// QueueDir queues a job for every art file in dir (the configured art
// directory when empty) and returns how many were queued.
func (a *App) QueueDir(dir string) (int, error) {
	if dir == "" {
		dir = a.cfg.Paths.ArtDir
	}
	jobs, err := a.builder.ForDir(dir)
	if err != nil {
		return 0, err
	}
	if err := a.queue.Enqueue(jobs...); err != nil {
		return 0, fmt.Errorf("queueing %d jobs: %w", len(jobs), err)
	}
	log.Info(log.CatRender, "Queued art directory", "dir", dir, "jobs", len(jobs), "queued", a.queue.Len())
	return len(jobs), nil
}

// Queued returns the number of jobs waiting for RenderAll.
func (a *App) Queued() int { return a.queue.Len() }

// ErrNothingQueued is returned by RenderAll when the queue is empty.
var ErrNothingQueued = errors.New("no art files queued")

// RenderAll starts every queued job as one batch, in queue order.
func (a *App) RenderAll() (*render.Handle, error) {
	jobs := a.queue.Drain()
	if len(jobs) == 0 {
		return nil, ErrNothingQueued
	}
	h, err := a.runner.Submit(jobs)
	if err != nil {
		// Keep the jobs for the next attempt.
		_ = a.queue.Enqueue(jobs...)
		return nil, err
	}
	return h, nil
}

// ResolveSettings returns the effective settings for templateID, or the
// application-level settings when templateID is empty.
func (a *App) ResolveSettings(templateID string) (*settings.EffectiveConfig, error) {
	desc, err := a.descriptor(templateID)
	if err != nil {
		return nil, err
	}
	return a.orch.ResolveSettings(desc)
}

// SettingsFile returns the override file written by "settings set" for
// templateID, or the application layer file when templateID is empty.
func (a *App) SettingsFile(templateID string) (string, *settings.Schema, error) {
	desc, err := a.descriptor(templateID)
	if err != nil {
		return "", nil, err
	}
	if desc == nil {
		return filepath.Join(a.cfg.Paths.SettingsDir, render.AppLayerFile), a.schema, nil
	}
	schema, err := desc.Schema(a.schema)
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(a.cfg.Paths.SettingsDir, desc.OverrideFile()), schema, nil
}

func (a *App) descriptor(templateID string) (*templates.Descriptor, error) {
	if templateID == "" {
		return nil, nil
	}
	desc, ok := a.registry.Lookup(templateID)
	if !ok {
		return nil, &templates.NoTemplateError{ID: templateID}
	}
	return desc, nil
}

// Close stops the watcher and releases the database, tracer and editor
// bridge. It does not wait for a running batch.
func (a *App) Close() error {
	var errs []error
	if a.watchCancel != nil {
		a.watchCancel()
		<-a.watchDone
		errs = append(errs, a.watcher.Stop())
		a.watchCancel = nil
	}
	if a.historyDB != nil {
		errs = append(errs, a.historyDB.Close())
		a.historyDB = nil
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.tracing.Shutdown(ctx))
		cancel()
		a.tracing = nil
	}
	if a.bridge != nil {
		errs = append(errs, a.bridge.Close())
		a.bridge = nil
	}
	return errors.Join(errs...)
}
