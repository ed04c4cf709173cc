package render

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/scryfall"
	"github.com/zjrosen/cardsmith/internal/session"
	"github.com/zjrosen/cardsmith/internal/settings"
	"github.com/zjrosen/cardsmith/internal/templates"
	"github.com/zjrosen/cardsmith/internal/tracing"
)

// Fetcher looks up card data.
type Fetcher interface {
	Fetch(ctx context.Context, id card.Identity) scryfall.Result
}

// batcher is implemented by fetchers that can pin one consistent view of
// the data for the length of a batch.
type batcher interface {
	Batch() *scryfall.Batch
}

// Resolver picks the template for a layout class.
type Resolver interface {
	Resolve(layout card.LayoutClass, requestedID string) (*templates.Descriptor, templates.Template, error)
}

// LayerLoader supplies the override layers for a job. Layers are read per
// job so edits between jobs take effect without a restart.
type LayerLoader interface {
	Application() (settings.Layer, error)
	Template(d *templates.Descriptor) (settings.Layer, error)
}

// AppLayerFile is the application override file inside a settings dir.
const AppLayerFile = "app.yaml"

// DirLayers loads override layers from a settings directory. An empty
// directory yields empty layers.
type DirLayers string

// Application loads <dir>/app.yaml.
func (d DirLayers) Application() (settings.Layer, error) {
	if d == "" {
		return settings.NewLayer(settings.LayerApplication, ""), nil
	}
	return settings.LoadLayer(settings.LayerApplication, filepath.Join(string(d), AppLayerFile))
}

// Template loads the descriptor's override file.
func (d DirLayers) Template(desc *templates.Descriptor) (settings.Layer, error) {
	if d == "" {
		return settings.NewLayer(settings.LayerTemplate, ""), nil
	}
	return settings.LoadLayer(settings.LayerTemplate, filepath.Join(string(d), desc.OverrideFile()))
}

// Options wires an Orchestrator.
type Options struct {
	Schema    *settings.Schema
	Layers    LayerLoader // Defaults to empty layers
	Data      Fetcher
	Templates Resolver
	Editor    editor.Editor
	Operator  Operator // Defaults to continuing without asking
	Policy    Policy
	Events    *pubsub.Broker[Event] // Defaults to a private broker
	Tracer    trace.Tracer          // Defaults to a no-op tracer
}

// Orchestrator runs render jobs one at a time. It is not safe to run two
// batches on the same orchestrator concurrently; the Runner enforces that.
type Orchestrator struct {
	schema    *settings.Schema
	layers    LayerLoader
	data      Fetcher
	templates Resolver
	editor    editor.Editor
	operator  Operator
	policy    Policy
	events    *pubsub.Broker[Event]
	tracer    trace.Tracer
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		schema:    opts.Schema,
		layers:    opts.Layers,
		data:      opts.Data,
		templates: opts.Templates,
		editor:    opts.Editor,
		operator:  opts.Operator,
		policy:    opts.Policy,
		events:    opts.Events,
		tracer:    opts.Tracer,
	}
	if o.layers == nil {
		o.layers = DirLayers("")
	}
	if o.operator == nil {
		o.operator = continueOperator{}
	}
	if o.events == nil {
		o.events = pubsub.NewBroker[Event]()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("render")
	}
	return o
}

// Events returns the broker progress events are published on.
func (o *Orchestrator) Events() *pubsub.Broker[Event] {
	return o.events
}

// Policy returns the failure policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

type continueOperator struct{}

func (continueOperator) ManualEdit(context.Context, JobInfo) Decision {
	return DecisionContinue
}

func (continueOperator) OnFailure(context.Context, JobInfo, error) Decision {
	return DecisionContinue
}

// batch is the state shared by the jobs of one run.
type batch struct {
	id    string
	total int
	data  Fetcher
}

func (o *Orchestrator) newBatch(total int) *batch {
	data := o.data
	if b, ok := data.(batcher); ok {
		data = b.Batch()
	}
	return &batch{id: uuid.NewString(), total: total, data: data}
}

// RunOne runs a single job outside any batch.
func (o *Orchestrator) RunOne(ctx context.Context, job Job) JobResult {
	res, _ := o.runJob(ctx, o.newBatch(1), job, 1)
	return res
}

// RunAll runs jobs in order and returns one result per job. It never
// returns early: once the batch stops, the remaining jobs are reported as
// skipped with a *CancelledError.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []Job) BatchReport {
	return o.runBatch(ctx, jobs, nil)
}

// runBatch is RunAll with a cooperative stop signal checked between jobs.
// Closing stop never interrupts the job in progress.
func (o *Orchestrator) runBatch(ctx context.Context, jobs []Job, stop <-chan struct{}) BatchReport {
	b := o.newBatch(len(jobs))
	report := BatchReport{ID: b.id, StartedAt: time.Now(), Results: make([]JobResult, 0, len(jobs))}

	ctx, span := o.tracer.Start(ctx, tracing.SpanBatch, trace.WithAttributes(
		attribute.String(tracing.AttrBatchID, b.id),
		attribute.Int(tracing.AttrBatchSize, len(jobs)),
	))
	defer span.End()

	log.Info(log.CatRender, "Batch started", "batch", b.id, "jobs", len(jobs))
	o.events.Publish(pubsub.CreatedEvent, Event{Kind: EventBatchStarted, BatchID: b.id, Total: b.total})

	var halt string
	for i, job := range jobs {
		if halt == "" && (ctx.Err() != nil || stopped(stop)) {
			halt = ReasonCancelled
		}
		if halt != "" {
			report.Results = append(report.Results, o.skipJob(b, job, i+1, halt))
			continue
		}

		res, abort := o.runJob(ctx, b, job, i+1)
		report.Results = append(report.Results, res)
		switch {
		case abort:
			halt = ReasonAborted
		case res.Status == StatusFailed && o.policy.StopOnFailure:
			halt = ReasonStopOnFailure
		}
	}

	report.Cancelled = halt == ReasonCancelled || halt == ReasonAborted
	report.FinishedAt = time.Now()

	succeeded, skipped, failed := report.Counts()
	span.SetAttributes(
		attribute.Int("batch.succeeded", succeeded),
		attribute.Int("batch.skipped", skipped),
		attribute.Int("batch.failed", failed),
	)
	log.Info(log.CatRender, "Batch finished", "batch", b.id,
		"succeeded", succeeded, "skipped", skipped, "failed", failed,
		"cancelled", report.Cancelled, "duration", report.Duration())

	final := report
	o.events.Publish(pubsub.FinishedEvent, Event{Kind: EventBatchFinished, BatchID: b.id, Total: b.total, Report: &final})
	return report
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// skipJob reports a job that never started.
func (o *Orchestrator) skipJob(b *batch, job Job, index int, reason string) JobResult {
	if job.Status == "" {
		job.Status = StatusPending
	}
	if err := job.transition(StatusSkipped); err != nil {
		log.ErrorErr(log.CatRender, "Skipping job", err, "job", job.ID)
	}
	res := JobResult{
		JobID:      job.ID,
		Art:        job.Art.Path,
		Card:       job.Identity,
		TemplateID: job.TemplateID,
		Status:     StatusSkipped,
		Stage:      StageQueued,
		Err:        &CancelledError{JobID: job.ID, Reason: reason},
		Reason:     reason,
	}
	log.Warn(log.CatRender, "Job skipped", "batch", b.id, "job", job.ID, "card", job.Identity.String(), "reason", reason)
	o.events.Publish(pubsub.UpdatedEvent, Event{
		Kind: EventJobFinished, BatchID: b.id, Total: b.total,
		Job: jobInfo(job, index, b.total), Result: &res,
	})
	return res
}

func jobInfo(job Job, index, total int) JobInfo {
	return JobInfo{
		ID:         job.ID,
		Index:      index,
		Total:      total,
		Card:       job.Identity.Name,
		Set:        job.Identity.Set,
		TemplateID: job.TemplateID,
		Art:        job.Art.Path,
		Stage:      job.Stage,
	}
}

// runJob runs one job to a terminal status. abort reports that the
// operator asked to stop the whole batch.
func (o *Orchestrator) runJob(ctx context.Context, b *batch, job Job, index int) (JobResult, bool) {
	start := time.Now()
	if job.Status == "" {
		job.Status = StatusPending
	}
	r := &jobRun{
		o:     o,
		batch: b,
		job:   job,
		info:  jobInfo(job, index, b.total),
		res: JobResult{
			JobID:      job.ID,
			Art:        job.Art.Path,
			Card:       job.Identity,
			TemplateID: job.TemplateID,
		},
	}

	ctx, span := o.tracer.Start(ctx, tracing.SpanJob, trace.WithAttributes(
		attribute.String(tracing.AttrBatchID, b.id),
		attribute.String(tracing.AttrJobID, job.ID),
		attribute.String(tracing.AttrCardName, job.Identity.Name),
		attribute.String(tracing.AttrArtPath, job.Art.Path),
	))
	defer span.End()

	log.Info(log.CatRender, "Job started", "batch", b.id, "job", job.ID, "index", index, "card", job.Identity.String())
	o.events.Publish(pubsub.UpdatedEvent, Event{Kind: EventJobStarted, BatchID: b.id, Total: b.total, Job: r.info})

	err := r.execute(ctx)
	r.finish(ctx, err)
	r.res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String(tracing.AttrCardSet, r.res.Card.Set),
		attribute.String(tracing.AttrTemplateID, r.res.TemplateID),
		attribute.String(tracing.AttrJobStatus, string(r.res.Status)),
		attribute.String(tracing.AttrJobStage, string(r.res.Stage)),
	)
	if r.res.OutputPath != "" {
		span.SetAttributes(attribute.String(tracing.AttrOutputPath, r.res.OutputPath))
	}
	if r.res.Err != nil {
		span.SetAttributes(
			attribute.String(tracing.AttrJobReason, r.res.Reason),
			attribute.String(tracing.AttrErrorType, fmt.Sprintf("%T", r.res.Err)),
		)
	}
	if r.res.Status == StatusFailed {
		span.SetStatus(codes.Error, r.res.Reason)
	}

	r.log()
	res := r.res
	o.events.Publish(pubsub.UpdatedEvent, Event{Kind: EventJobFinished, BatchID: b.id, Total: b.total, Job: r.info, Result: &res})
	return r.res, r.abort
}

// jobRun carries one job through the pipeline.
type jobRun struct {
	o     *Orchestrator
	batch *batch
	job   Job
	info  JobInfo
	res   JobResult

	cfg      *settings.EffectiveConfig // Most recently resolved settings
	failedAt Stage
	abort    bool
}

var errManualEditDeclined = errors.New("manual edit declined")

// execute runs the pipeline: settings(app) -> data -> template ->
// settings(template) -> open -> draw -> manual edit -> save -> close.
// The document is closed on every path out of the open stage, and panics
// anywhere in the pipeline become a *editor.DocumentError.
func (r *jobRun) execute(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &editor.DocumentError{Op: string(r.job.Stage), Path: r.job.Art.Path, Err: fmt.Errorf("panic: %v", p)}
			if r.failedAt == "" {
				r.failedAt = r.job.Stage
			}
		}
	}()

	if err := r.job.transition(StatusResolving); err != nil {
		return err
	}

	err = r.stage(ctx, StageSettings, func(context.Context) error {
		cfg, err := r.o.ResolveSettings(nil)
		r.cfg = cfg
		return err
	})
	if err != nil {
		return err
	}

	var rec card.Record
	err = r.stage(ctx, StageData, func(ctx context.Context) error {
		rec, err = r.fetch(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var desc *templates.Descriptor
	var tmpl templates.Template
	err = r.stage(ctx, StageTemplate, func(context.Context) error {
		if rec.Class == "" {
			return &templates.NoTemplateError{Layout: card.LayoutClass(rec.Layout)}
		}
		desc, tmpl, err = r.o.templates.Resolve(rec.Class, r.job.TemplateID)
		if err != nil {
			return err
		}
		r.res.TemplateID, r.info.TemplateID = desc.ID, desc.ID
		return nil
	})
	if err != nil {
		return err
	}

	var ft editor.Filetype
	var outPath string
	err = r.stage(ctx, StageTemplateSettings, func(context.Context) error {
		cfg, err := r.o.ResolveSettings(desc)
		if err != nil {
			return err
		}
		r.cfg = cfg
		ft, outPath, err = r.output(rec, desc)
		return err
	})
	if err != nil {
		return err
	}
	r.info.OutputPath = outPath

	if err := r.job.transition(StatusRendering); err != nil {
		return err
	}

	var sess *session.Session
	err = r.stage(ctx, StageOpen, func(ctx context.Context) error {
		sess, err = session.Open(ctx, r.o.editor, desc.DocumentPath)
		return err
	})
	defer func() {
		// The document must be released even when ctx is already done.
		closeCtx := context.WithoutCancel(ctx)
		if cerr := r.stage(closeCtx, StageClose, sess.Close); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err != nil {
		return err
	}

	err = r.stage(ctx, StageDraw, func(ctx context.Context) error {
		return r.draw(ctx, tmpl, sess, templates.DrawInput{Record: rec, Config: r.cfg, ArtPath: r.job.Art.Path}, desc)
	})
	if err != nil {
		return err
	}

	manual, err := r.o.policy.manualEdit(r.cfg)
	if err != nil {
		r.failedAt = StageManualEdit
		return err
	}
	if manual {
		err = r.stage(ctx, StageManualEdit, func(ctx context.Context) error {
			switch r.o.operator.ManualEdit(ctx, r.info) {
			case DecisionContinue:
				return nil
			case DecisionSkip:
				return errManualEditDeclined
			default:
				r.abort = true
				return &CancelledError{JobID: r.job.ID, Reason: ReasonAborted}
			}
		})
		if err != nil {
			return err
		}
	}

	return r.stage(ctx, StageSave, func(ctx context.Context) error {
		if err := sess.Save(ctx, outPath, ft); err != nil {
			return err
		}
		r.res.OutputPath = outPath
		return nil
	})
}

// stage runs fn as one traced pipeline step.
func (r *jobRun) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	r.job.Stage, r.info.Stage = s, s
	r.o.events.Publish(pubsub.UpdatedEvent, Event{Kind: EventJobStage, BatchID: r.batch.id, Total: r.batch.total, Job: r.info})

	ctx, span := r.o.tracer.Start(ctx, tracing.SpanStagePrefix+string(s))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.failedAt == "" {
			r.failedAt = s
		}
	}
	log.Debug(log.CatRender, "Stage finished", "job", r.job.ID, "stage", s, "ok", err == nil)
	return err
}

// fetch resolves the card record. Basic lands are synthesized from the
// art file when Render.Basic is on.
func (r *jobRun) fetch(ctx context.Context) (card.Record, error) {
	id := r.job.Identity
	if id.Language == "" {
		lang, err := r.cfg.Enum(settings.KeyLanguage)
		if err != nil {
			return card.Record{}, err
		}
		id.Language = lang
	}
	basic, err := r.cfg.Bool(settings.KeyRenderBasic)
	if err != nil {
		return card.Record{}, err
	}

	var rec card.Record
	if basic && card.IsBasicLand(id.Name) {
		rec = card.SyntheticBasicLand(r.job.Art)
	} else {
		order, err := searchOrder(r.cfg)
		if err != nil {
			return card.Record{}, err
		}
		classOpts, err := classifyOptions(r.cfg)
		if err != nil {
			return card.Record{}, err
		}
		res := r.batch.data.Fetch(scryfall.WithOrder(ctx, order), id)
		r.res.Attempts = res.Attempts
		if res.Err != nil {
			return card.Record{}, res.Err
		}
		rec = res.Record
		rec.Class = card.Classify(rec, classOpts)
	}
	if r.job.Art.Artist != "" {
		rec.Artist = r.job.Art.Artist
	}

	r.res.Card = card.Identity{Name: rec.Name, Set: rec.Set, Number: rec.CollectorNumber, Language: rec.Lang}
	r.res.Warnings = append(r.res.Warnings, rec.Warnings...)
	r.info.Card, r.info.Set = rec.DisplayName(), rec.Set
	return rec, nil
}

func searchOrder(cfg *settings.EffectiveConfig) (scryfall.Order, error) {
	sorting, err := cfg.Enum(settings.KeySorting)
	if err != nil {
		return scryfall.Order{}, err
	}
	asc, err := cfg.Bool(settings.KeyAscending)
	if err != nil {
		return scryfall.Order{}, err
	}
	return scryfall.Order{Sorting: sorting, Ascending: asc}, nil
}

func classifyOptions(cfg *settings.EffectiveConfig) (card.ClassifyOptions, error) {
	miracle, err := cfg.Bool(settings.KeyRenderMiracle)
	if err != nil {
		return card.ClassifyOptions{}, err
	}
	snow, err := cfg.Bool(settings.KeyRenderSnow)
	if err != nil {
		return card.ClassifyOptions{}, err
	}
	return card.ClassifyOptions{RenderMiracle: miracle, RenderSnow: snow}, nil
}

// output reads the file settings and picks the output path.
func (r *jobRun) output(rec card.Record, desc *templates.Descriptor) (editor.Filetype, string, error) {
	raw, err := r.cfg.Enum(settings.KeyOutputFiletype)
	if err != nil {
		return "", "", err
	}
	ft, err := editor.ParseFiletype(raw)
	if err != nil {
		return "", "", &settings.ConfigError{Key: settings.KeyOutputFiletype, Err: err}
	}
	withArtist, err := r.cfg.Bool(settings.KeySaveArtistName)
	if err != nil {
		return "", "", err
	}
	overwrite, err := r.cfg.Bool(settings.KeyOverwriteDuplicate)
	if err != nil {
		return "", "", err
	}

	naming := Naming{Suffix: desc.Suffix, Overwrite: overwrite}
	if withArtist {
		naming.Artist = rec.Artist
	}
	path, err := OutputPath(r.job.OutputDir, rec.DisplayName(), ft, naming)
	return ft, path, err
}

// draw runs the template, converting panics into document errors so the
// job fails without taking the batch down.
func (r *jobRun) draw(ctx context.Context, t templates.Template, c templates.Canvas, in templates.DrawInput, desc *templates.Descriptor) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &editor.DocumentError{Op: "draw", Path: desc.DocumentPath, Err: fmt.Errorf("template %s panicked: %v", desc.ID, p)}
		}
	}()
	return t.Draw(ctx, c, in)
}

// finish classifies err, consults the operator about failures, and moves
// the job to its terminal status.
func (r *jobRun) finish(ctx context.Context, err error) {
	status, reason := classify(err)
	r.res.Err = err
	r.res.Reason = reason
	r.res.Stage = StageDone
	if err != nil {
		r.res.Stage = r.failedAt
		if r.res.Stage == "" {
			r.res.Stage = r.job.Stage
		}
	}

	if status == StatusFailed && !r.abort && !r.skipFailed() && ctx.Err() == nil {
		r.info.Stage = r.res.Stage
		switch r.o.operator.OnFailure(ctx, r.info, err) {
		case DecisionSkip:
			status = StatusSkipped
			r.res.Reason = "skipped by operator: " + reason
		case DecisionAbort:
			r.abort = true
		}
	}

	if terr := r.job.transition(status); terr != nil {
		log.ErrorErr(log.CatRender, "Finishing job", terr, "job", r.job.ID)
	}
	r.res.Status = status
	r.info.Stage = r.res.Stage
}

// skipFailed reports whether failures skip without asking. A job that
// failed before its settings resolved falls back to asking.
func (r *jobRun) skipFailed() bool {
	skip, err := r.o.policy.skipFailed(r.cfg)
	if err != nil {
		log.Debug(log.CatRender, "Skip.Failed unavailable, asking operator", "job", r.job.ID, "error", err)
		return false
	}
	return skip
}

// classify maps a pipeline error to a terminal status and a reason.
func classify(err error) (Status, string) {
	var ve *settings.ValidationError
	var ce *CancelledError
	switch {
	case err == nil:
		return StatusSucceeded, ""
	case errors.As(err, &ve):
		return StatusSkipped, err.Error()
	case errors.As(err, &ce):
		return StatusSkipped, ce.Reason
	case errors.Is(err, errManualEditDeclined):
		return StatusSkipped, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusSkipped, ReasonCancelled
	default:
		return StatusFailed, err.Error()
	}
}

func (r *jobRun) log() {
	fields := []any{
		"batch", r.batch.id, "job", r.job.ID, "card", r.res.Card.String(),
		"template", r.res.TemplateID, "stage", r.res.Stage, "status", r.res.Status,
		"duration", r.res.Duration,
	}
	switch r.res.Status {
	case StatusSucceeded:
		log.Info(log.CatRender, "Job succeeded", append(fields, "output", r.res.OutputPath)...)
	case StatusSkipped:
		log.Warn(log.CatRender, "Job skipped", append(fields, "reason", r.res.Reason)...)
	default:
		log.ErrorErr(log.CatRender, "Job failed", r.res.Err, fields...)
	}
	for _, w := range r.res.Warnings {
		log.Warn(log.CatRender, "Job warning", "job", r.job.ID, "warning", w)
	}
}

// ResolveSettings resolves the application settings, extended with the
// template's options and overrides when desc is set. With Dev.Mode on the
// template override file is not read.
func (o *Orchestrator) ResolveSettings(desc *templates.Descriptor) (*settings.EffectiveConfig, error) {
	app, err := o.layers.Application()
	if err != nil {
		return nil, err
	}
	cfg, err := settings.Resolve(o.schema, app)
	if err != nil || desc == nil {
		return cfg, err
	}
	dev, err := cfg.Bool(settings.KeyDevMode)
	if err != nil {
		return nil, err
	}

	schema, err := desc.Schema(o.schema)
	if err != nil {
		return nil, err
	}
	layers := []settings.Layer{app}
	if dev {
		log.Debug(log.CatSettings, "Dev mode, ignoring template overrides", "template", desc.ID)
	} else {
		tl, err := o.layers.Template(desc)
		if err != nil {
			return nil, err
		}
		layers = append(layers, tl)
	}
	return settings.Resolve(schema, layers...)
}
