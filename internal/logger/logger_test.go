package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "nil output falls back to stdout", config: &Config{Level: "info"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	l.Info("schema inferred")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "schema inferred", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf}).
		Component("metadata").
		With().Str("table", "orders").Int("sample", 10).Logger()

	l.Info("sampling rows")

	entry := decode(t, buf)
	assert.Equal(t, "metadata", entry["component"])
	assert.Equal(t, "orders", entry["table"])
	assert.Equal(t, float64(10), entry["sample"])
}

func TestLogger_WarnWith(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "warn", Format: "json", Output: buf})

	l.WarnWith("sample fetch failed", errors.New("connection refused"), map[string]any{
		"table": "orders",
	})

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "orders", entry["table"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := l.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := Global()
	SetGlobal(New(&Config{Level: "info", Format: "json", Output: buf}))
	t.Cleanup(func() { SetGlobal(prev) })

	FromContext(context.Background()).Info("global")

	entry := decode(t, buf)
	assert.Equal(t, "global", entry["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("d") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("d") }, false},
		{"warning alias", "warning", func(l *Logger) { l.Warn("w") }, true},
		{"error level skips info", "error", func(l *Logger) { l.Info("i") }, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("e") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Format: "json", Output: buf}))
			if tt.expected {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().ErrorWith("ignored", errors.New("x"), nil) })
}

func BenchmarkLogger_WithFields(b *testing.B) {
	l := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.With().Str("table", "orders").Int("request_id", i).Logger().Info("benchmark")
	}
}
