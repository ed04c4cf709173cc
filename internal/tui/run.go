package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/render"
)

// Run shows the progress view until the batch finishes or the user quits,
// then waits for the batch and returns its report.
func Run(ctx context.Context, h *render.Handle, logs *log.Listener, opts ...tea.ProgramOption) (render.BatchReport, error) {
	zone.NewGlobal()
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}, opts...)
	final, err := tea.NewProgram(New(h, logs), opts...).Run()
	if m, ok := final.(Model); ok {
		if report, done := m.Report(); done {
			return report, nil
		}
	}
	if err != nil {
		log.ErrorErr(log.CatCLI, "Progress view stopped", err)
	}

	// The view is gone: stop the batch and refuse any further questions so
	// the running job cannot wait on a prompt nobody sees.
	h.Cancel()
	go drainPrompts(h)

	report, werr := h.Wait(context.WithoutCancel(ctx))
	if werr != nil {
		return report, fmt.Errorf("waiting for batch: %w", werr)
	}
	return report, nil
}

func drainPrompts(h *render.Handle) {
	for ev := range h.Events() {
		if ev.Payload.Kind == render.EventPrompt && ev.Payload.Prompt != nil {
			ev.Payload.Prompt.Answer(render.DecisionAbort)
		}
	}
}
