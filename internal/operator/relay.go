package operator

import (
	"context"

	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/render"
)

// Relay hands questions to whoever listens on the progress broker (the
// TUI) as prompt events, and blocks until one is answered.
type Relay struct {
	events *pubsub.Broker[render.Event]
}

var _ render.Operator = (*Relay)(nil)

// NewRelay creates a Relay publishing on events.
func NewRelay(events *pubsub.Broker[render.Event]) *Relay {
	return &Relay{events: events}
}

// ManualEdit implements render.Operator.
func (r *Relay) ManualEdit(ctx context.Context, job render.JobInfo) render.Decision {
	return r.ask(ctx, render.NewPrompt(render.PromptManualEdit, job, nil))
}

// OnFailure implements render.Operator.
func (r *Relay) OnFailure(ctx context.Context, job render.JobInfo, err error) render.Decision {
	return r.ask(ctx, render.NewPrompt(render.PromptFailure, job, err))
}

func (r *Relay) ask(ctx context.Context, p *render.Prompt) render.Decision {
	r.events.Publish(pubsub.UpdatedEvent, render.Event{
		Kind:   render.EventPrompt,
		Total:  p.Job.Total,
		Job:    p.Job,
		Prompt: p,
	})
	return p.Wait(ctx)
}
