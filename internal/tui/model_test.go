package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/render"
)

type fakeBatch struct {
	events    chan pubsub.Event[render.Event]
	cancelled int
}

func newFakeBatch() *fakeBatch {
	return &fakeBatch{events: make(chan pubsub.Event[render.Event], 16)}
}

func (f *fakeBatch) Events() <-chan pubsub.Event[render.Event] { return f.events }
func (f *fakeBatch) Cancel()                                   { f.cancelled++ }

func event(ev render.Event) pubsub.Event[render.Event] {
	return pubsub.Event[render.Event]{Type: pubsub.UpdatedEvent, Payload: ev, Timestamp: time.Now()}
}

func info(i int, name string) render.JobInfo {
	return render.JobInfo{ID: name, Index: i, Total: 3, Card: name, Stage: render.StageDraw}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func started(t *testing.T) (Model, *fakeBatch) {
	t.Helper()
	b := newFakeBatch()
	m := New(b, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, event(render.Event{Kind: render.EventBatchStarted, BatchID: "b1", Total: 3}))
	return m, b
}

func TestModel_TracksJobs(t *testing.T) {
	m, _ := started(t)
	require.Len(t, m.rows, 3)
	require.Contains(t, m.View(), "0/3")

	m, _ = update(t, m, event(render.Event{Kind: render.EventJobStarted, Job: info(1, "Opt")}))
	require.Equal(t, 0, m.current)
	require.Equal(t, render.StatusResolving, m.rows[0].status)

	m, _ = update(t, m, event(render.Event{Kind: render.EventJobFinished, Job: info(1, "Opt"),
		Result: &render.JobResult{Status: render.StatusSucceeded, Stage: render.StageDone, OutputPath: "out/Opt.jpg"}}))
	m, _ = update(t, m, event(render.Event{Kind: render.EventJobFinished, Job: info(2, "Missing"),
		Result: &render.JobResult{Status: render.StatusFailed, Stage: render.StageData, Err: errors.New("card not found")}}))

	view := m.View()
	require.Contains(t, view, "✓")
	require.Contains(t, view, "out/Opt.jpg")
	require.Contains(t, view, "✗")
	require.Contains(t, view, "failed at data: card not found")
	require.Contains(t, view, "2/3")
	require.InDelta(t, 2.0/3.0, m.fraction(), 0.001)
}

func TestModel_AnswersPrompt(t *testing.T) {
	tests := []struct {
		key  string
		want render.Decision
	}{
		{"c", render.DecisionContinue},
		{"s", render.DecisionSkip},
		{"a", render.DecisionAbort},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, _ := started(t)
			p := render.NewPrompt(render.PromptFailure, info(1, "Opt"), errors.New("disk full"))
			m, _ = update(t, m, event(render.Event{Kind: render.EventPrompt, Job: p.Job, Prompt: p}))
			require.Same(t, p, m.Prompt())
			require.Contains(t, m.View(), "Opt failed at draw: disk full")

			m, _ = update(t, m, keyMsg(tt.key))
			require.Nil(t, m.Prompt())

			got := make(chan render.Decision, 1)
			go func() { got <- p.Wait(t.Context()) }()
			require.Equal(t, tt.want, <-got)
		})
	}
}

func TestModel_CancelIsCooperative(t *testing.T) {
	m, b := started(t)
	p := render.NewPrompt(render.PromptManualEdit, info(1, "Opt"), nil)
	m, _ = update(t, m, event(render.Event{Kind: render.EventPrompt, Job: p.Job, Prompt: p}))

	m, cmd := update(t, m, keyMsg("q"))
	require.Nil(t, cmd, "q does not quit the view")
	require.Equal(t, 1, b.cancelled)
	require.True(t, m.cancelling)
	require.Nil(t, m.Prompt(), "open prompt is aborted")
	require.Equal(t, render.DecisionAbort, p.Wait(t.Context()))
	require.Contains(t, m.View(), "cancelling")

	m, _ = update(t, m, keyMsg("q"))
	require.Equal(t, 1, b.cancelled)

	late := render.NewPrompt(render.PromptManualEdit, info(2, "Consider"), nil)
	m, _ = update(t, m, event(render.Event{Kind: render.EventPrompt, Job: late.Job, Prompt: late}))
	require.Nil(t, m.Prompt())
	require.Equal(t, render.DecisionAbort, late.Wait(t.Context()))
}

func TestModel_QuitsWhenBatchFinishes(t *testing.T) {
	m, _ := started(t)
	start := time.Now()
	report := &render.BatchReport{
		ID: "b1", StartedAt: start, FinishedAt: start.Add(2 * time.Second),
		Results: []render.JobResult{{Status: render.StatusSucceeded}, {Status: render.StatusFailed}, {Status: render.StatusSkipped}},
	}
	m, cmd := update(t, m, event(render.Event{Kind: render.EventBatchFinished, Report: report}))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())

	got, ok := m.Report()
	require.True(t, ok)
	require.Equal(t, "b1", got.ID)
	require.Contains(t, m.View(), "skipped")
	require.Contains(t, m.View(), "2s")
}

func TestModel_CtrlCCancelsAndQuits(t *testing.T) {
	m, b := started(t)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Equal(t, 1, b.cancelled)
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	_, ok := m.Report()
	require.False(t, ok)
}

func TestModel_ListenStopsWhenEventsClose(t *testing.T) {
	b := newFakeBatch()
	m := New(b, nil)
	close(b.events)

	msg := m.listen()()
	require.IsType(t, eventsClosedMsg{}, msg)
	_, cmd := update(t, m, msg)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_LogTailIsBounded(t *testing.T) {
	m, _ := started(t)
	m.showLog = true
	for range maxLogLines + 50 {
		m = m.appendLog("2026-01-02T10:45:00 [INFO] [render] Job finished\n")
	}
	require.Len(t, m.logLines, maxLogLines)
	require.Contains(t, m.View(), "Job finished")

	m, _ = update(t, m, keyMsg("l"))
	require.False(t, m.showLog)
}

func TestModel_LongBatchKeepsCurrentRowVisible(t *testing.T) {
	b := newFakeBatch()
	m := New(b, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 14})
	m, _ = update(t, m, event(render.Event{Kind: render.EventBatchStarted, Total: 50}))
	m, _ = update(t, m, event(render.Event{Kind: render.EventJobStarted,
		Job: render.JobInfo{Index: 40, Total: 50, Card: "Fortieth Card", Stage: render.StageOpen}}))

	view := m.View()
	require.Contains(t, view, "Fortieth Card")
	require.NotContains(t, view, "#1 ")
}
