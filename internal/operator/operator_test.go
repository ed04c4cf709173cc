package operator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/pubsub"
	"github.com/zjrosen/cardsmith/internal/render"
)

type fakeChooser struct {
	idx  int
	err  error
	seen []SelectConfig
}

func (f *fakeChooser) Select(_ context.Context, cfg SelectConfig) (int, error) {
	f.seen = append(f.seen, cfg)
	return f.idx, f.err
}

var job = render.JobInfo{ID: "j1", Index: 2, Total: 5, Card: "Opt", Stage: render.StageDraw}

func TestAuto(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, render.DecisionContinue, Auto{}.ManualEdit(ctx, job))
	require.Equal(t, render.DecisionContinue, Auto{}.OnFailure(ctx, job, errors.New("x")))

	a := Auto{OnManualEdit: render.DecisionSkip, OnFail: render.DecisionAbort}
	require.Equal(t, render.DecisionSkip, a.ManualEdit(ctx, job))
	require.Equal(t, render.DecisionAbort, a.OnFailure(ctx, job, errors.New("x")))
}

func TestConsole_MapsChoices(t *testing.T) {
	tests := []struct {
		idx  int
		err  error
		want render.Decision
	}{
		{0, nil, render.DecisionContinue},
		{1, nil, render.DecisionSkip},
		{2, nil, render.DecisionAbort},
		{-1, nil, render.DecisionAbort},
		{0, context.Canceled, render.DecisionAbort},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			c := &fakeChooser{idx: tt.idx, err: tt.err}
			require.Equal(t, tt.want, NewConsole(c).OnFailure(context.Background(), job, errors.New("disk full")))
		})
	}
}

func TestConsole_Questions(t *testing.T) {
	c := &fakeChooser{}
	con := NewConsole(c)

	con.ManualEdit(context.Background(), job)
	con.OnFailure(context.Background(), job, errors.New("disk full"))

	require.Len(t, c.seen, 2)
	require.Equal(t, []string{LabelContinue, LabelSkip, LabelAbort}, c.seen[0].Options)
	require.Equal(t, LabelContinue, c.seen[0].Default)
	require.Contains(t, c.seen[0].Message, "[2/5] Opt")
	require.Contains(t, c.seen[1].Message, "failed at draw: disk full")
}

func TestRelay_PublishesPromptAndWaits(t *testing.T) {
	broker := pubsub.NewBroker[render.Event]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := broker.Subscribe(ctx)

	relay := NewRelay(broker)
	got := make(chan render.Decision, 1)
	go func() { got <- relay.OnFailure(ctx, job, errors.New("boom")) }()

	ev := <-events
	require.Equal(t, render.EventPrompt, ev.Payload.Kind)
	require.Equal(t, render.PromptFailure, ev.Payload.Prompt.Kind)
	require.EqualError(t, ev.Payload.Prompt.Err, "boom")
	require.Equal(t, "j1", ev.Payload.Job.ID)

	ev.Payload.Prompt.Answer(render.DecisionSkip)
	require.Equal(t, render.DecisionSkip, <-got)
}

func TestRelay_CancelledContextAborts(t *testing.T) {
	relay := NewRelay(pubsub.NewBroker[render.Event]())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, render.DecisionAbort, relay.ManualEdit(ctx, job))
}
