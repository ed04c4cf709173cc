// Package render schedules and executes render jobs. Jobs run strictly one
// at a time against the editor: each job resolves its settings, card data
// and template, then draws into a single open document that is always
// closed before the next job starts.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/cardsmith/internal/card"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolving Status = "resolving"
	StatusRendering Status = "rendering"
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s ends a job.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusSkipped || s == StatusFailed
}

// Stage names the pipeline step a job is in, or failed in.
type Stage string

const (
	StageQueued           Stage = "queued"
	StageSettings         Stage = "settings"
	StageData             Stage = "data"
	StageTemplate         Stage = "template"
	StageTemplateSettings Stage = "template_settings"
	StageOpen             Stage = "open"
	StageDraw             Stage = "draw"
	StageManualEdit       Stage = "manual_edit"
	StageSave             Stage = "save"
	StageClose            Stage = "close"
	StageDone             Stage = "done"
)

// ErrInvalidTransition is returned when a job is moved along an edge its
// state machine does not have.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job is one art file to render. Jobs are owned by the orchestrator for
// the duration of a run and never shared between goroutines.
type Job struct {
	ID         string
	Art        card.ArtFile
	Identity   card.Identity
	TemplateID string // Requested template; empty selects the default
	OutputDir  string

	Status Status
	Stage  Stage
}

// NewJob returns a pending job for art.
func NewJob(id string, art card.ArtFile, templateID, outputDir string) Job {
	return Job{
		ID:         id,
		Art:        art,
		Identity:   art.Identity(""),
		TemplateID: templateID,
		OutputDir:  outputDir,
		Status:     StatusPending,
		Stage:      StageQueued,
	}
}

// transition moves the job to next. Allowed edges are
// Pending->Resolving->Rendering->terminal and Resolving->terminal, plus
// Pending->Skipped for jobs that never start.
func (j *Job) transition(next Status) error {
	ok := false
	switch j.Status {
	case StatusPending:
		ok = next == StatusResolving || next == StatusSkipped
	case StatusResolving:
		ok = next == StatusRendering || next.Terminal()
	case StatusRendering:
		ok = next.Terminal()
	}
	if !ok {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, j.ID, j.Status, next)
	}
	j.Status = next
	return nil
}

// JobResult is the outcome of one job.
type JobResult struct {
	JobID      string
	Art        string
	Card       card.Identity
	TemplateID string
	Status     Status
	Stage      Stage // Stage reached, or the stage that failed
	Err        error
	Reason     string
	OutputPath string
	Warnings   []string
	Attempts   int // Data source calls made for this job
	Duration   time.Duration
}

// OK reports whether the job produced an output file.
func (r JobResult) OK() bool { return r.Status == StatusSucceeded }

// BatchReport holds one result per submitted job, in submission order.
type BatchReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []JobResult
	Cancelled  bool
}

// Counts tallies results by terminal status.
func (r BatchReport) Counts() (succeeded, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			succeeded++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, skipped, failed
}

// Duration is the wall time of the batch.
func (r BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the failed results.
func (r BatchReport) Failed() []JobResult {
	var out []JobResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Reasons a job was skipped without running.
const (
	ReasonCancelled     = "batch cancelled"
	ReasonStopOnFailure = "stopped after an earlier failure"
	ReasonAborted       = "batch aborted by operator"
)

// CancelledError marks a job that was skipped because the batch stopped.
type CancelledError struct {
	JobID  string
	Reason string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("job %s not run: %s", e.JobID, e.Reason)
}

// IsCancelled reports whether err is a *CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}
