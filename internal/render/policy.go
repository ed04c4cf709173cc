package render

import (
	"context"
	"sync"

	"github.com/zjrosen/cardsmith/internal/settings"
)

// Policy is the externally configured failure handling. Nil toggles take
// their value from each job's effective settings (Skip.Failed and
// Manual.Edit).
type Policy struct {
	StopOnFailure bool
	SkipFailed    *bool
	ManualEdit    *bool
}

// Force returns a pointer to b for Policy toggles.
func Force(b bool) *bool { return &b }

func (p Policy) skipFailed(cfg *settings.EffectiveConfig) (bool, error) {
	return toggle(p.SkipFailed, cfg, settings.KeySkipFailed)
}

func (p Policy) manualEdit(cfg *settings.EffectiveConfig) (bool, error) {
	return toggle(p.ManualEdit, cfg, settings.KeyManualEdit)
}

func toggle(forced *bool, cfg *settings.EffectiveConfig, k settings.Key) (bool, error) {
	if forced != nil {
		return *forced, nil
	}
	return cfg.Bool(k)
}

// Decision is an operator's answer to a prompt.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionSkip     Decision = "skip"
	DecisionAbort    Decision = "abort"
)

// DecisionCancel is the manual edit name for aborting the batch.
const DecisionCancel = DecisionAbort

// JobInfo is the operator-facing view of a job.
type JobInfo struct {
	ID         string
	Index      int // 1-based position in the batch
	Total      int
	Card       string
	Set        string
	TemplateID string
	Art        string
	OutputPath string
	Stage      Stage
}

// Operator answers the pipeline's questions. ManualEdit is the only
// deliberate suspension point in a job; it blocks until the operator
// answers or ctx ends.
type Operator interface {
	ManualEdit(ctx context.Context, job JobInfo) Decision
	OnFailure(ctx context.Context, job JobInfo, err error) Decision
}

// PromptKind says which question a prompt asks.
type PromptKind string

const (
	PromptManualEdit PromptKind = "manual_edit"
	PromptFailure    PromptKind = "failure"
)

// Prompt is a pending operator question carried on an event. The first
// Answer wins; later answers are ignored.
type Prompt struct {
	Kind PromptKind
	Job  JobInfo
	Err  error

	once  sync.Once
	reply chan Decision
}

// NewPrompt creates an unanswered prompt.
func NewPrompt(kind PromptKind, job JobInfo, err error) *Prompt {
	return &Prompt{Kind: kind, Job: job, Err: err, reply: make(chan Decision, 1)}
}

// Choices lists the valid answers.
func (p *Prompt) Choices() []Decision {
	return []Decision{DecisionContinue, DecisionSkip, DecisionAbort}
}

// Answer records d.
func (p *Prompt) Answer(d Decision) {
	p.once.Do(func() { p.reply <- d })
}

// Wait blocks for the answer. A cancelled ctx answers Abort.
func (p *Prompt) Wait(ctx context.Context) Decision {
	select {
	case d := <-p.reply:
		return d
	case <-ctx.Done():
		return DecisionAbort
	}
}
