package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/render"
	"github.com/zjrosen/cardsmith/internal/scryfall"
)

func TestCardJSON_Normalizes(t *testing.T) {
	raw := CardJSON("Delver of Secrets",
		Layout("transform"), Set("ISD"), Number("51"),
		Face("Delver of Secrets", "Creature — Human Wizard", PT("1", "1")),
		Face("Insectile Aberration", "Creature — Human Insect", PT("3", "2"), Keywords("Flying")),
	)

	rec, err := scryfall.Normalize(raw, card.Identity{Name: "Insectile Aberration"})
	require.NoError(t, err)
	require.Equal(t, "Insectile Aberration", rec.Name)
	require.Equal(t, "ISD", rec.Set)
	require.Equal(t, "51", rec.CollectorNumber)
	require.Equal(t, "3", rec.Power)
	require.False(t, rec.Front)
	require.Len(t, rec.Faces, 2)
}

func TestScriptedSource_StepsThenRepeat(t *testing.T) {
	boom := errors.New("boom")
	src := NewScriptedSource().Script("Opt", Fail(boom), Return(CardJSON("Opt")))
	ctx := context.Background()

	_, err := src.Lookup(ctx, card.Identity{Name: "Opt"})
	require.ErrorIs(t, err, boom)
	for range 2 {
		raw, err := src.Lookup(ctx, card.Identity{Name: "opt"})
		require.NoError(t, err)
		require.Contains(t, string(raw), `"name":"Opt"`)
	}

	_, err = src.Lookup(ctx, card.Identity{Name: "Unknown"})
	require.ErrorIs(t, err, scryfall.ErrNotFound)
	require.Equal(t, 3, src.Calls("Opt"))
	require.Equal(t, 4, src.Total())
}

func TestFakeEditor_TracksOpenDocuments(t *testing.T) {
	ctx := context.Background()
	e := NewFakeEditor()

	a, err := e.OpenDocument(ctx, "a.png")
	require.NoError(t, err)
	b, err := e.OpenDocument(ctx, "b.png")
	require.NoError(t, err)
	require.Equal(t, 2, e.MaxOpen())

	require.NoError(t, e.DrawLayer(ctx, a, editor.LayerSpec{Name: "Name", Kind: editor.LayerText, Text: "Opt"}))
	require.NoError(t, e.CloseDocument(ctx, a))
	require.NoError(t, e.CloseDocument(ctx, b))
	require.ErrorIs(t, e.CloseDocument(ctx, b), editor.ErrNoDocument)

	opened, closed := e.Counts()
	require.Equal(t, 2, opened)
	require.Equal(t, 2, closed)
	require.Equal(t, []string{"open a.png", "open b.png", "draw Name", "close doc-1", "close doc-2", "close doc-2"}, e.Calls())
}

func TestRecordingOperator_ScriptedThenContinue(t *testing.T) {
	op := NewRecordingOperator().OnFailures("skip")
	ctx := context.Background()
	require.EqualValues(t, "skip", op.OnFailure(ctx, render.JobInfo{ID: "j1"}, errors.New("x")))
	require.EqualValues(t, "continue", op.OnFailure(ctx, render.JobInfo{ID: "j2"}, errors.New("y")))
	require.Len(t, op.Failures, 2)
	require.EqualValues(t, "continue", op.ManualEdit(ctx, render.JobInfo{ID: "j3"}))
}
