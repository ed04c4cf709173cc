// Package tui is the interactive progress view for render batches. It
// follows the orchestrator's events, answers operator prompts from the
// keyboard and tails the debug log.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/cardsmith/internal/keys"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/render"
)

const (
	maxLogLines   = 200
	logHeight     = 6
	nameWidth     = 28
	defaultWidth  = 80
	defaultHeight = 24
)

// Clickable prompt buttons.
const (
	zoneContinue = "prompt-continue"
	zoneSkip     = "prompt-skip"
	zoneAbort    = "prompt-abort"
)

// Batch is the running batch the view follows.
type Batch interface {
	Events() <-chan pubsub.Event[render.Event]
	Cancel()
}

type row struct {
	info   render.JobInfo
	status render.Status
	stage  render.Stage
	detail string
}

// Model is the Bubble Tea model of the progress view.
type Model struct {
	batch  Batch
	events <-chan pubsub.Event[render.Event]
	logs   *log.Listener

	batchID string
	total   int
	rows    []row
	current int // 0-based index of the running job, -1 when idle

	prompt     *render.Prompt
	cancelling bool
	report     *render.BatchReport
	quitting   bool

	spinner  spinner.Model
	progress progress.Model
	logView  viewport.Model
	logLines []string
	showLog  bool

	width  int
	height int
	keys   keys.ProgressKeyMap
}

// New creates a progress view for batch. logs may be nil.
func New(batch Batch, logs *log.Listener) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = warningStyle

	return Model{
		batch:    batch,
		events:   batch.Events(),
		logs:     logs,
		current:  -1,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		logView:  viewport.New(defaultWidth, logHeight),
		showLog:  logs != nil,
		width:    defaultWidth,
		height:   defaultHeight,
		keys:     keys.Progress,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.listen()}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

func (m Model) listen() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return ev
	}
}

type eventsClosedMsg struct{}

// Report returns the finished batch report, if the batch has finished.
func (m Model) Report() (render.BatchReport, bool) {
	if m.report == nil {
		return render.BatchReport{}, false
	}
	return *m.report, true
}

// Prompt returns the question waiting for an answer, if any.
func (m Model) Prompt() *render.Prompt {
	return m.prompt
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = max(msg.Width-4, 10)
		m.logView.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.prompt != nil && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionRelease {
			return m.handleClick(msg), nil
		}
		return m, nil

	case pubsub.Event[render.Event]:
		m = m.apply(msg.Payload)
		if m.report != nil {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.listen()

	case eventsClosedMsg:
		// Subscription ended without a finish event; nothing more will come.
		m.quitting = true
		return m, tea.Quit

	case pubsub.Event[string]:
		m = m.appendLog(msg.Payload)
		return m, m.logs.Listen()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompt != nil {
		switch {
		case key.Matches(msg, m.keys.Continue):
			return m.answer(render.DecisionContinue), nil
		case key.Matches(msg, m.keys.Skip):
			return m.answer(render.DecisionSkip), nil
		case key.Matches(msg, m.keys.Abort):
			return m.answer(render.DecisionAbort), nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m = m.cancel()
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		return m.cancel(), nil
	case key.Matches(msg, m.keys.ToggleLog):
		m.showLog = !m.showLog
		return m, nil
	case key.Matches(msg, m.keys.ScrollUp):
		m.logView.ScrollUp(1)
		return m, nil
	case key.Matches(msg, m.keys.ScrollDown):
		m.logView.ScrollDown(1)
		return m, nil
	}
	return m, nil
}

func (m Model) handleClick(msg tea.MouseMsg) Model {
	for _, b := range []struct {
		id string
		d  render.Decision
	}{
		{zoneContinue, render.DecisionContinue},
		{zoneSkip, render.DecisionSkip},
		{zoneAbort, render.DecisionAbort},
	} {
		if z := zone.Get(b.id); z != nil && z.InBounds(msg) {
			return m.answer(b.d)
		}
	}
	return m
}

func (m Model) answer(d render.Decision) Model {
	m.prompt.Answer(d)
	m.prompt = nil
	return m
}

// cancel stops the batch after the running job. A pending prompt is
// answered with Abort so the job does not wait forever.
func (m Model) cancel() Model {
	if !m.cancelling {
		m.batch.Cancel()
		m.cancelling = true
	}
	if m.prompt != nil {
		m = m.answer(render.DecisionAbort)
	}
	return m
}

func (m Model) apply(ev render.Event) Model {
	switch ev.Kind {
	case render.EventBatchStarted:
		m.batchID = ev.BatchID
		m.total = ev.Total
		m.rows = make([]row, ev.Total)
		for i := range m.rows {
			m.rows[i] = row{status: render.StatusPending, stage: render.StageQueued}
		}
	case render.EventJobStarted, render.EventJobStage:
		if r := m.row(ev.Job); r != nil {
			r.info = ev.Job
			r.stage = ev.Job.Stage
			if r.status == render.StatusPending {
				r.status = render.StatusResolving
			}
			m.current = ev.Job.Index - 1
		}
	case render.EventJobFinished:
		if r := m.row(ev.Job); r != nil && ev.Result != nil {
			r.info = ev.Job
			r.status = ev.Result.Status
			r.stage = ev.Result.Stage
			r.detail = resultDetail(*ev.Result)
		}
		m.current = -1
	case render.EventPrompt:
		if m.cancelling && ev.Prompt != nil {
			ev.Prompt.Answer(render.DecisionAbort)
			return m
		}
		m.prompt = ev.Prompt
	case render.EventBatchFinished:
		m.prompt = nil
		m.report = ev.Report
	}
	return m
}

func (m Model) row(info render.JobInfo) *row {
	i := info.Index - 1
	if i < 0 || i >= len(m.rows) {
		return nil
	}
	return &m.rows[i]
}

func resultDetail(res render.JobResult) string {
	switch res.Status {
	case render.StatusSucceeded:
		return res.OutputPath
	case render.StatusFailed:
		return fmt.Sprintf("failed at %s: %v", res.Stage, res.Err)
	default:
		return res.Reason
	}
}

func (m Model) appendLog(line string) Model {
	m.logLines = append(m.logLines, strings.TrimRight(line, "\n"))
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	atBottom := m.logView.AtBottom()
	m.logView.SetContent(strings.Join(m.logLines, "\n"))
	if atBottom {
		m.logView.GotoBottom()
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	return zone.Scan(m.view())
}

func (m Model) view() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(m.fraction()))
	b.WriteString("\n\n")

	for _, line := range m.visibleRows() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.prompt != nil {
		b.WriteString("\n")
		b.WriteString(m.promptView())
		b.WriteString("\n")
	}

	if m.report != nil {
		b.WriteString("\n")
		b.WriteString(m.summary())
		b.WriteString("\n")
		return b.String()
	}

	if m.showLog && len(m.logLines) > 0 {
		b.WriteString(logStyle.Width(m.width).Render(m.logView.View()))
		b.WriteString("\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	done := m.finished()
	title := titleStyle.Render("cardsmith")
	var state string
	switch {
	case m.report != nil:
		state = "finished"
	case m.cancelling:
		state = warningStyle.Render("cancelling after the current card")
	case m.current >= 0:
		state = m.spinner.View() + " rendering"
	default:
		state = "waiting"
	}
	return fmt.Sprintf("%s  %s  %s", title, state, mutedStyle.Render(fmt.Sprintf("%d/%d", done, m.total)))
}

func (m Model) finished() int {
	n := 0
	for _, r := range m.rows {
		if r.status.Terminal() {
			n++
		}
	}
	return n
}

func (m Model) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.finished()) / float64(m.total)
}

// visibleRows keeps the running job in view when the batch is taller than
// the terminal.
func (m Model) visibleRows() []string {
	room := m.height - 8
	if m.prompt != nil {
		room -= 5
	}
	if m.showLog {
		room -= logHeight + 1
	}
	room = max(room, 3)

	start := 0
	if len(m.rows) > room {
		focus := m.current
		if focus < 0 {
			focus = m.finished()
		}
		start = min(max(focus-room/2, 0), len(m.rows)-room)
	}
	end := min(start+room, len(m.rows))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.rowView(i))
	}
	return lines
}

func (m Model) rowView(i int) string {
	r := m.rows[i]
	name := r.info.Card
	if name == "" {
		name = fmt.Sprintf("#%d", i+1)
	}
	name = runewidth.FillRight(runewidth.Truncate(name, nameWidth, "…"), nameWidth)

	detail := r.detail
	if !r.status.Terminal() && r.status != render.StatusPending {
		detail = string(r.stage)
	}
	detail = ansi.Truncate(detail, max(m.width-nameWidth-5, 10), "…")

	return fmt.Sprintf(" %s %s %s", m.glyph(r.status), name, detailStyle.Render(detail))
}

func (m Model) glyph(s render.Status) string {
	switch s {
	case render.StatusSucceeded:
		return successStyle.Render("✓")
	case render.StatusFailed:
		return errorStyle.Render("✗")
	case render.StatusSkipped:
		return warningStyle.Render("↷")
	case render.StatusResolving, render.StatusRendering:
		return m.spinner.View()
	default:
		return mutedStyle.Render("·")
	}
}

func (m Model) promptView() string {
	p := m.prompt
	var question string
	switch p.Kind {
	case render.PromptManualEdit:
		question = fmt.Sprintf("%s is open for manual edits. Continue when done.", p.Job.Card)
	default:
		question = errorStyle.Render(fmt.Sprintf("%s failed at %s: %v", p.Job.Card, p.Job.Stage, p.Err))
	}
	width := max(m.width-2, 20)
	question = wordwrap.String(question, width-4)
	return promptStyle.Width(width).Render(question + "\n\n" + m.promptButtons())
}

func (m Model) promptButtons() string {
	bindings := m.keys.PromptHelp()
	ids := []string{zoneContinue, zoneSkip, zoneAbort}
	buttons := make([]string, 0, len(bindings))
	for i, b := range bindings {
		h := b.Help()
		label := buttonStyle.Render(h.Desc + " (" + h.Key + ")")
		if i < len(ids) {
			label = zone.Mark(ids[i], label)
		}
		buttons = append(buttons, label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}

func (m Model) summary() string {
	r := m.report
	succeeded, skipped, failed := r.Counts()
	line := fmt.Sprintf("%s succeeded, %s skipped, %s failed in %s",
		successStyle.Render(fmt.Sprint(succeeded)),
		warningStyle.Render(fmt.Sprint(skipped)),
		errorStyle.Render(fmt.Sprint(failed)),
		r.Duration().Round(time.Millisecond))
	if r.Cancelled {
		line += warningStyle.Render(" (cancelled)")
	}
	return line
}

func (m Model) footer() string {
	return mutedStyle.Render(helpLine(m.keys.ShortHelp()))
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}
