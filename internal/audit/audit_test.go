package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSink_Record(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, time.UTC)
	sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	sink.Record(context.Background(), LevelWarn, "retry_scheduled", map[string]any{
		"operation_id": "op-1",
		"error":        errors.New("upstream 503"),
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "retry_scheduled", got["msg"])
	assert.Equal(t, "op-1", got["operation_id"])
	assert.Equal(t, "upstream 503", got["error"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["ts"])
}

func TestJSONSink_LevelFromStatus(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, nil)

	sink.Record(context.Background(), "", "step", map[string]any{"status": "error"})
	sink.Record(context.Background(), "", "step", map[string]any{"status": "success"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", first["level"])
	assert.Equal(t, "info", second["level"])
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, Nop{}, OrNop(nil))

	sink := NewJSONSink(&bytes.Buffer{}, nil)
	assert.Same(t, sink, OrNop(sink))
}
