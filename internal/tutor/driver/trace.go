package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/agritutor/agritutor/internal/tutor/content"
)

// TraceEntry is one provider exchange written as a single NDJSON line.
type TraceEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Driver     string         `json:"driver"`
	Model      string         `json:"model,omitempty"`
	Messages   []TraceMessage `json:"messages,omitempty"`
	Text       string         `json:"text,omitempty"`
	Finish     string         `json:"finish_reason,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// TraceMessage summarizes a request message. Inline media is reduced to its
// type and size.
type TraceMessage struct {
	Role  string      `json:"role"`
	Parts []TracePart `json:"parts"`
}

// TracePart is a text excerpt or an inline attachment summary.
type TracePart struct {
	Type  content.ContentType `json:"type"`
	Text  string              `json:"text,omitempty"`
	Bytes int                 `json:"bytes,omitempty"`
}

// SummarizeMessages converts request messages into trace form.
func SummarizeMessages(messages []content.Message) []TraceMessage {
	out := make([]TraceMessage, 0, len(messages))
	for _, msg := range messages {
		tm := TraceMessage{Role: msg.Role}
		for _, block := range msg.Content {
			part := TracePart{Type: block.Type}
			if block.IsInline() {
				part.Bytes = len(block.Data)
			} else {
				part.Text = block.Text
			}
			tm.Parts = append(tm.Parts, part)
		}
		out = append(out, tm)
	}
	return out
}

// Tracer appends trace entries to a writer.
type Tracer struct {
	mu sync.Mutex
	w  io.WriteCloser
}

var (
	tracerMu     sync.Mutex
	activeTracer *Tracer
)

// EnableTracing starts tracing to path and returns a function that stops it.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- trace path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	tracerMu.Lock()
	prev := activeTracer
	activeTracer = &Tracer{w: f}
	tracerMu.Unlock()
	_ = prev.Close()

	return DisableTracing, nil
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	tracerMu.Lock()
	prev := activeTracer
	activeTracer = nil
	tracerMu.Unlock()
	_ = prev.Close()
}

// IsTracingEnabled reports whether a trace file is open.
func IsTracingEnabled() bool {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	return activeTracer != nil
}

// Trace records entry if tracing is enabled.
func Trace(entry TraceEntry) {
	tracerMu.Lock()
	t := activeTracer
	tracerMu.Unlock()
	t.Write(entry)
}

// Write records a trace entry.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w != nil {
		_, _ = t.w.Write(line)
	}
}

// Close closes the underlying writer.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	err := t.w.Close()
	t.w = nil
	return err
}
