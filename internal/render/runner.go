package render

import (
	"context"
	"errors"
	"sync"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/pubsub"
)

// ErrBatchRunning is returned by Submit while a batch is still running.
var ErrBatchRunning = errors.New("a render batch is already running")

// ReportSink receives every finished batch report.
type ReportSink interface {
	SaveBatch(ctx context.Context, report BatchReport) error
}

// Runner is the batch-execution context. It runs one batch at a time on
// its own goroutine so callers stay responsive while rendering.
type Runner struct {
	orch *Orchestrator
	sink ReportSink

	mu      sync.Mutex
	current *Handle
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReportSink stores finished reports in sink. Sink errors are logged
// and do not affect the report.
func WithReportSink(sink ReportSink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// NewRunner creates a Runner for orch.
func NewRunner(orch *Orchestrator, opts ...RunnerOption) *Runner {
	r := &Runner{orch: orch}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Orchestrator returns the orchestrator batches run on.
func (r *Runner) Orchestrator() *Orchestrator {
	return r.orch
}

// Submit starts jobs as a new batch.
func (r *Runner) Submit(jobs []Job) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		select {
		case <-r.current.done:
		default:
			return nil, ErrBatchRunning
		}
	}

	// The batch must not inherit the submitter's lifetime; it ends through
	// Handle.Cancel or by finishing.
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.events = r.orch.Events().Subscribe(ctx)
	r.current = h

	go r.run(ctx, h, jobs)
	return h, nil
}

func (r *Runner) run(ctx context.Context, h *Handle, jobs []Job) {
	defer func() {
		close(h.done)
		h.cancel()
	}()

	report := r.orch.runBatch(ctx, jobs, h.stop)
	h.report = report

	if r.sink != nil {
		if err := r.sink.SaveBatch(context.WithoutCancel(ctx), report); err != nil {
			log.ErrorErr(log.CatHistory, "Saving batch report", err, "batch", report.ID)
		}
	}
}

// Running reports whether a batch is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return false
	}
	select {
	case <-r.current.done:
		return false
	default:
		return true
	}
}

// Handle is a submitted batch.
type Handle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
	events   <-chan pubsub.Event[Event]
	report   BatchReport
}

// Cancel asks the batch to stop. Cancellation is cooperative: the job in
// progress runs to completion and every job after it is skipped.
func (h *Handle) Cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed when the batch has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Events streams the batch's progress events. The channel is closed after
// the batch finishes.
func (h *Handle) Events() <-chan pubsub.Event[Event] {
	return h.events
}

// Wait blocks until the batch finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (BatchReport, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return BatchReport{}, ctx.Err()
	}
}
