// Package audit provides the injected sink that components use to emit
// structured audit and log events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is the severity of an event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, level Level, message string, fields map[string]any)
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	w   io.Writer
	loc *time.Location
	now func() time.Time
}

// NewJSONSink returns a sink writing to w with timestamps rendered in loc.
func NewJSONSink(w io.Writer, loc *time.Location) *JSONSink {
	if w == nil {
		w = os.Stdout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &JSONSink{w: w, loc: loc, now: time.Now}
}

// Record implements Sink.
func (s *JSONSink) Record(_ context.Context, level Level, message string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = s.now().In(s.loc).Format(time.RFC3339Nano)
	entry["msg"] = message
	if level == "" {
		if entry["status"] == "error" {
			level = LevelError
		} else {
			level = LevelInfo
		}
	}
	entry["level"] = string(level)

	b, err := json.Marshal(entry)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"level":"error","msg":"failed to marshal audit event","error":%q}`, err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(b, '\n'))
}

// Nop discards every event.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Level, string, map[string]any) {}

// OrNop returns s, or a Nop sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}
