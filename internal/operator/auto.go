// Package operator answers the render pipeline's questions: automatically,
// on the console, or by relaying them to the progress UI.
package operator

import (
	"context"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/render"
)

// Auto answers every question with a fixed decision. Zero values mean
// Continue.
type Auto struct {
	OnManualEdit render.Decision
	OnFail       render.Decision
}

var _ render.Operator = Auto{}

// ManualEdit implements render.Operator.
func (a Auto) ManualEdit(_ context.Context, job render.JobInfo) render.Decision {
	d := orContinue(a.OnManualEdit)
	log.Debug(log.CatRender, "Manual edit answered automatically", "job", job.ID, "decision", d)
	return d
}

// OnFailure implements render.Operator.
func (a Auto) OnFailure(_ context.Context, job render.JobInfo, err error) render.Decision {
	d := orContinue(a.OnFail)
	log.Debug(log.CatRender, "Failure answered automatically", "job", job.ID, "decision", d, "error", err)
	return d
}

func orContinue(d render.Decision) render.Decision {
	if d == "" {
		return render.DecisionContinue
	}
	return d
}
