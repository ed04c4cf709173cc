package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/render"
)

func newTestRepo(t *testing.T) (*Repository, *DB) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), db
}

func report(id string, started time.Time, results ...render.JobResult) render.BatchReport {
	return render.BatchReport{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Results:    results,
	}
}

func TestNewDB_CreatesDirAndMigrates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := NewDB(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	v, err := db.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(2), v)
}

func TestNewDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, NewRepository(db).SaveBatch(context.Background(), report("b1", time.Now())))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	require.Equal(t, 2, n)

	_, err = NewRepository(db).FindBatch(context.Background(), "b1")
	require.NoError(t, err, "data survives reopening")
}

func TestRepository_SaveAndFind(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)

	r := report("b1", started,
		render.JobResult{
			JobID: "j1", Art: "art/Opt.jpg", Card: card.Identity{Name: "Opt", Set: "XLN"},
			TemplateID: "normal", Status: render.StatusSucceeded, Stage: render.StageDone,
			OutputPath: "out/Opt.jpg", Attempts: 2, Duration: 1500 * time.Millisecond,
			Warnings: []string{"no printing in ja; using en", "flavor text truncated"},
		},
		render.JobResult{
			JobID: "j2", Card: card.Identity{Name: "Missing"}, Status: render.StatusFailed,
			Stage: render.StageData, Err: errors.New("card not found"), Reason: "card not found", Attempts: 1,
		},
		render.JobResult{
			JobID: "j3", Card: card.Identity{Name: "Consider"}, Status: render.StatusSkipped,
			Stage: render.StageQueued, Reason: render.ReasonCancelled,
		},
	)
	r.Cancelled = true
	require.NoError(t, repo.SaveBatch(ctx, r))

	got, err := repo.FindBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, "b1", got.ID)
	require.True(t, got.StartedAt.Equal(started))
	require.Equal(t, 3*time.Second, got.Duration())
	require.True(t, got.Cancelled)
	require.Equal(t, [3]int{1, 1, 1}, [3]int{got.Succeeded, got.Skipped, got.Failed})
	require.Equal(t, 3, got.Total())

	require.Len(t, got.Jobs, 3)
	first := got.Jobs[0]
	require.Equal(t, 1, first.Seq)
	require.Equal(t, "Opt", first.Card)
	require.Equal(t, "XLN", first.Set)
	require.Equal(t, render.StatusSucceeded, first.Status)
	require.Equal(t, render.StageDone, first.Stage)
	require.Equal(t, "art/Opt.jpg", first.ArtPath)
	require.Equal(t, 2, first.Attempts)
	require.Equal(t, 1500*time.Millisecond, first.Duration)
	require.Equal(t, []string{"no printing in ja; using en", "flavor text truncated"}, first.Warnings)

	require.Equal(t, "card not found", got.Jobs[1].Reason)
	require.Nil(t, got.Jobs[1].Warnings)
	require.Equal(t, render.ReasonCancelled, got.Jobs[2].Reason)
}

func TestRepository_SaveReplacesSameID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.SaveBatch(ctx, report("b1", now,
		render.JobResult{JobID: "j1", Status: render.StatusFailed},
		render.JobResult{JobID: "j2", Status: render.StatusFailed},
	)))
	require.NoError(t, repo.SaveBatch(ctx, report("b1", now,
		render.JobResult{JobID: "j1", Status: render.StatusSucceeded},
	)))

	got, err := repo.FindBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got.Jobs, 1)
	require.Equal(t, 1, got.Succeeded)
	require.Zero(t, got.Failed)
}

func TestRepository_FindUnknown(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.FindBatch(context.Background(), "nope")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	empty, err := repo.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, empty)

	for i := range 5 {
		require.NoError(t, repo.SaveBatch(ctx, report(fmt.Sprintf("b%d", i), base.Add(time.Duration(i)*time.Hour),
			render.JobResult{JobID: "j", Status: render.StatusSucceeded})))
	}

	got, err := repo.ListBatches(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"b4", "b3", "b2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.Nil(t, got[0].Jobs, "summaries do not load jobs")

	all, err := repo.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestRepository_AsReportSink(t *testing.T) {
	repo, _ := newTestRepo(t)
	var sink render.ReportSink = repo
	require.NoError(t, sink.SaveBatch(context.Background(), report("sink", time.Now())))

	got, err := repo.FindBatch(context.Background(), "sink")
	require.NoError(t, err)
	require.Zero(t, got.Total())
}
