package tracing

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// lifted attributes become top-level fields of a trace line so a job's
// spans can be selected with jq without digging into "attrs".
var lifted = map[attribute.Key]string{
	AttrBatchID:    "batch",
	AttrJobID:      "job",
	AttrCardName:   "card",
	AttrJobStage:   "stage",
	AttrTemplateID: "template",
}

// FileExporter appends finished spans to a JSONL file, one line per span.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewFileExporter opens path for appending, creating it and its parent
// directories when missing.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: configured trace path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: f, w: bufio.NewWriter(f)}, nil
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}

	for _, s := range spans {
		line, err := traceLine(s)
		if err != nil {
			return fmt.Errorf("encode span %s: %w", s.Name(), err)
		}
		_, _ = e.w.Write(line)
		_ = e.w.WriteByte('\n')
	}
	return e.w.Flush()
}

// Shutdown flushes and closes the file. Later calls are no-ops.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	ferr := e.w.Flush()
	cerr := e.file.Close()
	e.file = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// traceLine encodes one span:
//
//	{"trace":"…","span":"…","parent":"…","name":"render.job","start":"…",
//	 "ms":12.5,"status":"error","error":"…","job":"…","card":"Opt",
//	 "attrs":{…},"events":[{"name":"session.closed","at_ms":3.2}]}
func traceLine(s sdktrace.ReadOnlySpan) ([]byte, error) {
	start := s.StartTime()
	fields := []struct {
		path  string
		value any
	}{
		{"trace", s.SpanContext().TraceID().String()},
		{"span", s.SpanContext().SpanID().String()},
		{"name", s.Name()},
		{"start", start.UTC().Format(time.RFC3339Nano)},
		{"ms", millis(s.EndTime().Sub(start))},
		{"status", statusName(s.Status().Code)},
	}

	line := []byte(`{}`)
	var err error
	for _, f := range fields {
		if line, err = sjson.SetBytes(line, f.path, f.value); err != nil {
			return nil, err
		}
	}
	if p := s.Parent(); p.IsValid() {
		if line, err = sjson.SetBytes(line, "parent", p.SpanID().String()); err != nil {
			return nil, err
		}
	}
	if msg := s.Status().Description; msg != "" {
		if line, err = sjson.SetBytes(line, "error", msg); err != nil {
			return nil, err
		}
	}

	for _, kv := range s.Attributes() {
		path := "attrs." + escapePath(string(kv.Key))
		if field, ok := lifted[kv.Key]; ok {
			path = field
		}
		if line, err = sjson.SetBytes(line, path, kv.Value.AsInterface()); err != nil {
			return nil, err
		}
	}

	for i, ev := range s.Events() {
		prefix := fmt.Sprintf("events.%d.", i)
		if line, err = sjson.SetBytes(line, prefix+"name", ev.Name); err != nil {
			return nil, err
		}
		if line, err = sjson.SetBytes(line, prefix+"at_ms", millis(ev.Time.Sub(start))); err != nil {
			return nil, err
		}
		for _, kv := range ev.Attributes {
			if line, err = sjson.SetBytes(line, prefix+"attrs."+escapePath(string(kv.Key)), kv.Value.AsInterface()); err != nil {
				return nil, err
			}
		}
	}
	return line, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func statusName(c codes.Code) string {
	switch c {
	case codes.Ok:
		return "ok"
	case codes.Error:
		return "error"
	default:
		return "unset"
	}
}

// escapePath quotes the characters sjson treats as path syntax; attribute
// keys are dotted.
func escapePath(key string) string {
	out := make([]byte, 0, len(key)+4)
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
