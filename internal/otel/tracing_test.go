package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opledger/internal/audit"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
	last map[string]any
}

func (s *captureSink) Record(_ context.Context, _ audit.Level, msg string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.last = fields
}

func TestInit_Disabled(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")
	sink := &captureSink{}

	shutdown, err := Init(context.Background(), sink)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, []string{"tracing_configured"}, sink.msgs)
	assert.Equal(t, false, sink.last["tracing_enabled"])
}

func TestInit_UnsupportedProtocolDegrades(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "carrier-pigeon")
	sink := &captureSink{}

	shutdown, err := Init(context.Background(), sink)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, []string{"tracing_init_failed"}, sink.msgs)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name, arg string
		want      string
	}{
		{"always_on", "", "AlwaysOnSampler"},
		{"always_off", "", "AlwaysOffSampler"},
		{"traceidratio", "0.5", "TraceIDRatioBased{0.5}"},
		{"traceidratio", "nope", "AlwaysOnSampler"},
		{"parentbased_always_off", "", "ParentBased{root:AlwaysOffSampler"},
		{"unknown", "", "ParentBased{root:AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.arg, func(t *testing.T) {
			assert.Contains(t, sampler(tt.name, tt.arg).Description(), tt.want)
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("OPLEDGER_OTEL_TEST", "")
	assert.Equal(t, "fallback", getEnv("OPLEDGER_OTEL_TEST", "fallback"))
	t.Setenv("OPLEDGER_OTEL_TEST", "set")
	assert.Equal(t, "set", getEnv("OPLEDGER_OTEL_TEST", "fallback"))
}
