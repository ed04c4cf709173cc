package tracing

// Span attribute keys for render tracing.
const (
	AttrBatchID    = "batch.id"
	AttrBatchSize  = "batch.size"
	AttrJobID      = "job.id"
	AttrJobStatus  = "job.status"
	AttrJobStage   = "job.stage"
	AttrJobReason  = "job.reason"
	AttrCardName   = "card.name"
	AttrCardSet    = "card.set"
	AttrArtPath    = "art.path"
	AttrTemplateID = "template.id"
	AttrOutputPath = "output.path"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span names.
const (
	SpanBatch       = "render.batch"
	SpanJob         = "render.job"
	SpanStagePrefix = "render.stage."
)

// Event names for span events.
const (
	EventPromptShown   = "operator.prompt"
	EventSessionOpened = "session.opened"
	EventSessionClosed = "session.closed"
)
