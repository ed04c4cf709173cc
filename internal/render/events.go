package render

// EventKind identifies a progress event.
type EventKind string

const (
	EventBatchStarted  EventKind = "batch_started"
	EventJobStarted    EventKind = "job_started"
	EventJobStage      EventKind = "job_stage"
	EventJobFinished   EventKind = "job_finished"
	EventPrompt        EventKind = "prompt"
	EventBatchFinished EventKind = "batch_finished"
)

// Event is published on the orchestrator's broker as a batch progresses.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	BatchID string
	Total   int
	Job     JobInfo
	Result  *JobResult
	Prompt  *Prompt
	Report  *BatchReport
}
