package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/render"
)

// Answer labels shown on the console.
const (
	LabelContinue = "Continue"
	LabelSkip     = "Skip"
	LabelAbort    = "Abort batch"
)

var choices = []render.Decision{render.DecisionContinue, render.DecisionSkip, render.DecisionAbort}

var labels = map[render.Decision]string{
	render.DecisionContinue: LabelContinue,
	render.DecisionSkip:     LabelSkip,
	render.DecisionAbort:    LabelAbort,
}

// SelectConfig describes one single-choice question.
type SelectConfig struct {
	Message string
	Options []string
	Default string
	Help    string
}

// Chooser asks a single-choice question and returns the chosen index.
type Chooser interface {
	Select(ctx context.Context, cfg SelectConfig) (int, error)
}

// Console asks the operator on the terminal.
type Console struct {
	chooser Chooser
}

var _ render.Operator = (*Console)(nil)

// NewConsole creates a Console. A nil chooser uses interactive survey
// prompts on stdin/stdout.
func NewConsole(c Chooser) *Console {
	if c == nil {
		c = surveyChooser{}
	}
	return &Console{chooser: c}
}

// ManualEdit implements render.Operator.
func (c *Console) ManualEdit(ctx context.Context, job render.JobInfo) render.Decision {
	msg := fmt.Sprintf("[%d/%d] %s is open for manual edits. Continue when done:", job.Index, job.Total, job.Card)
	return c.ask(ctx, job, SelectConfig{
		Message: msg,
		Default: LabelContinue,
		Help:    "Continue saves the document, Skip closes it without saving.",
	})
}

// OnFailure implements render.Operator.
func (c *Console) OnFailure(ctx context.Context, job render.JobInfo, err error) render.Decision {
	msg := fmt.Sprintf("[%d/%d] %s failed at %s: %v", job.Index, job.Total, job.Card, job.Stage, err)
	return c.ask(ctx, job, SelectConfig{
		Message: msg,
		Default: LabelContinue,
		Help:    "Continue records the failure, Skip marks the card skipped.",
	})
}

func (c *Console) ask(ctx context.Context, job render.JobInfo, cfg SelectConfig) render.Decision {
	cfg.Options = make([]string, len(choices))
	for i, d := range choices {
		cfg.Options[i] = labels[d]
	}

	idx, err := c.chooser.Select(ctx, cfg)
	if err != nil {
		// An interrupted or failed prompt must not leave the batch running
		// unattended.
		log.Warn(log.CatRender, "Prompt failed; aborting batch", "job", job.ID, "error", err)
		return render.DecisionAbort
	}
	if idx < 0 || idx >= len(choices) {
		return render.DecisionAbort
	}
	return choices[idx]
}

type surveyChooser struct{}

func (surveyChooser) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var out string
	prompt := &survey.Select{
		Message: cfg.Message,
		Options: cfg.Options,
		Default: cfg.Default,
		Help:    cfg.Help,
	}
	if err := survey.AskOne(prompt, &out); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return 0, context.Canceled
		}
		return 0, err
	}
	for i, o := range cfg.Options {
		if o == out {
			return i, nil
		}
	}
	return -1, nil
}
