package testutil

import (
	"context"
	"sync"

	"github.com/zjrosen/cardsmith/internal/render"
)

// RecordingOperator answers prompts with scripted decisions and records
// every question. Unscripted questions are answered with Continue.
type RecordingOperator struct {
	mu      sync.Mutex
	manual  []render.Decision
	failure []render.Decision

	// Questions asked, in order.
	Manual   []render.JobInfo
	Failures []render.JobInfo
	FailErrs []error
}

var _ render.Operator = (*RecordingOperator)(nil)

// NewRecordingOperator creates an operator that continues by default.
func NewRecordingOperator() *RecordingOperator {
	return &RecordingOperator{}
}

// OnManualEdit queues answers for successive manual edit pauses.
func (o *RecordingOperator) OnManualEdit(d ...render.Decision) *RecordingOperator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manual = append(o.manual, d...)
	return o
}

// OnFailures queues answers for successive failure prompts.
func (o *RecordingOperator) OnFailures(d ...render.Decision) *RecordingOperator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failure = append(o.failure, d...)
	return o
}

// ManualEdit implements render.Operator.
func (o *RecordingOperator) ManualEdit(_ context.Context, job render.JobInfo) render.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Manual = append(o.Manual, job)
	return pop(&o.manual)
}

// OnFailure implements render.Operator.
func (o *RecordingOperator) OnFailure(_ context.Context, job render.JobInfo, err error) render.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Failures = append(o.Failures, job)
	o.FailErrs = append(o.FailErrs, err)
	return pop(&o.failure)
}

func pop(q *[]render.Decision) render.Decision {
	if len(*q) == 0 {
		return render.DecisionContinue
	}
	d := (*q)[0]
	*q = (*q)[1:]
	return d
}
