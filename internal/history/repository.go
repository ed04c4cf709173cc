package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/render"
)

// ErrBatchNotFound is returned by FindBatch for an unknown batch id.
var ErrBatchNotFound = errors.New("batch not found")

// DefaultListLimit bounds ListBatches when no limit is given.
const DefaultListLimit = 20

// warningSep joins job warnings into one column.
const warningSep = "\n"

// Batch is a stored batch summary.
type Batch struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Succeeded  int
	Skipped    int
	Failed     int
	Jobs       []Job // Only populated by FindBatch
}

// Duration is the wall-clock time the batch took.
func (b Batch) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// Total is the number of jobs in the batch.
func (b Batch) Total() int {
	return b.Succeeded + b.Skipped + b.Failed
}

// Job is one stored job result.
type Job struct {
	Seq        int
	JobID      string
	Card       string
	Set        string
	TemplateID string
	Status     render.Status
	Stage      render.Stage
	Reason     string
	OutputPath string
	ArtPath    string
	Warnings   []string
	Attempts   int
	Duration   time.Duration
}

// Repository reads and writes batch reports.
type Repository struct {
	db *DB
}

var _ render.ReportSink = (*Repository)(nil)

// NewRepository creates a Repository on db.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveBatch stores report and its job results in one transaction. Saving
// the same batch id again replaces the earlier rows.
func (r *Repository) SaveBatch(ctx context.Context, report render.BatchReport) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	succeeded, skipped, failed := report.Counts()
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, report.ID); err != nil {
		return fmt.Errorf("replacing batch %s: %w", report.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO batches (id, started_at, finished_at, cancelled, succeeded, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, formatTime(report.StartedAt), formatTime(report.FinishedAt),
		report.Cancelled, succeeded, skipped, failed,
	); err != nil {
		return fmt.Errorf("inserting batch %s: %w", report.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_results (
			batch_id, seq, job_id, card_name, set_code, template_id, status,
			stage, reason, output_path, attempts, duration_ms, art_path, warnings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, res := range report.Results {
		if _, err := stmt.ExecContext(ctx,
			report.ID, i+1, res.JobID, res.Card.Name, res.Card.Set, res.TemplateID,
			string(res.Status), string(res.Stage), res.Reason, res.OutputPath,
			res.Attempts, res.Duration.Milliseconds(), res.Art,
			strings.Join(res.Warnings, warningSep),
		); err != nil {
			return fmt.Errorf("inserting job %s: %w", res.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug(log.CatHistory, "Saved batch", "batch", report.ID, "jobs", len(report.Results))
	return nil
}

// FindBatch loads one batch with its jobs in run order.
func (r *Repository) FindBatch(ctx context.Context, id string) (Batch, error) {
	row := r.db.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, cancelled, succeeded, skipped, failed
		FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return Batch{}, err
	}

	rows, err := r.db.db.QueryContext(ctx, `
		SELECT seq, job_id, card_name, set_code, template_id, status, stage,
			reason, output_path, attempts, duration_ms, art_path, warnings
		FROM job_results WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		log.ErrorErr(log.CatHistory, "FindBatch query failed", err, "batch", id)
		return Batch{}, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			j             Job
			status, stage string
			durationMS    int64
			warnings      string
		)
		if err := rows.Scan(&j.Seq, &j.JobID, &j.Card, &j.Set, &j.TemplateID, &status, &stage,
			&j.Reason, &j.OutputPath, &j.Attempts, &durationMS, &j.ArtPath, &warnings); err != nil {
			return Batch{}, err
		}
		j.Status = render.Status(status)
		j.Stage = render.Stage(stage)
		j.Duration = time.Duration(durationMS) * time.Millisecond
		if warnings != "" {
			j.Warnings = strings.Split(warnings, warningSep)
		}
		b.Jobs = append(b.Jobs, j)
	}
	return b, rows.Err()
}

// ListBatches returns up to limit batch summaries, newest first.
func (r *Repository) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, cancelled, succeeded, skipped, failed
		FROM batches ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		log.ErrorErr(log.CatHistory, "ListBatches query failed", err, "limit", limit)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(s scanner) (Batch, error) {
	var (
		b                 Batch
		started, finished string
	)
	if err := s.Scan(&b.ID, &started, &finished, &b.Cancelled, &b.Succeeded, &b.Skipped, &b.Failed); err != nil {
		return Batch{}, err
	}
	var err error
	if b.StartedAt, err = parseTime(started); err != nil {
		return Batch{}, err
	}
	if b.FinishedAt, err = parseTime(finished); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
