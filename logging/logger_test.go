package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrsFromArgs(t *testing.T) {
	t.Run("key value pairs", func(t *testing.T) {
		attrs := attrsFromArgs([]interface{}{"run_id", "r-1", "count", 3})
		require.Len(t, attrs, 2)
		assert.Equal(t, "run_id", attrs[0].Key)
		assert.Equal(t, "r-1", attrs[0].Value.String())
		assert.Equal(t, "count", attrs[1].Key)
		assert.Equal(t, int64(3), attrs[1].Value.Int64())
	})

	t.Run("lone trailing key", func(t *testing.T) {
		attrs := attrsFromArgs([]interface{}{"orphan"})
		require.Len(t, attrs, 1)
		assert.Equal(t, badKey, attrs[0].Key)
		assert.Equal(t, "orphan", attrs[0].Value.String())
	})

	t.Run("bare attr passes through", func(t *testing.T) {
		attrs := attrsFromArgs([]interface{}{slog.Int("n", 7), "k", "v"})
		require.Len(t, attrs, 2)
		assert.Equal(t, "n", attrs[0].Key)
		assert.Equal(t, "k", attrs[1].Key)
	})

	t.Run("non string key", func(t *testing.T) {
		attrs := attrsFromArgs([]interface{}{42, "k", "v"})
		require.Len(t, attrs, 2)
		assert.Equal(t, badKey, attrs[0].Key)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, attrsFromArgs(nil))
	})
}

func TestRuntimeLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&LoggerConfig{
		Level:     LogLevelDebug,
		Format:    "json",
		Output:    &buf,
		Component: "runner",
	})

	logger.Info("runner.event.append", "run_id", "r-1", "event_id", "e-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "runner.event.append", entry["msg"])
	assert.Equal(t, "runner", entry["component"])
	assert.Equal(t, "r-1", entry["run_id"])
	assert.Equal(t, "e-1", entry["event_id"])
}

func TestRuntimeLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept.warn")
	logger.Error("kept.error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept.warn")
	assert.Contains(t, out, "kept.error")
}

func TestRuntimeLogger_WithComponentAndContext(t *testing.T) {
	var buf bytes.Buffer

	base := NewLogger(&LoggerConfig{
		Level:       LogLevelInfo,
		Format:      "json",
		Output:      &buf,
		CustomAttrs: map[string]any{"app": "demo"},
	})
	scoped := base.WithComponent("server").WithContext("request_id", "req-7")

	scoped.Info("http.request")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "demo", entry["app"])

	// Scoping does not bleed back into the base logger.
	buf.Reset()
	base.Info("http.request")
	assert.NotContains(t, buf.String(), "req-7")
	assert.NotContains(t, buf.String(), "server")
}

func TestRuntimeLogger_WithSession(t *testing.T) {
	var buf bytes.Buffer

	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	scoped := base.WithSession("sess-1", "inv-1")

	scoped.Info("turn.start")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "inv-1", entry["invocation_id"])

	// The base logger is unchanged.
	buf.Reset()
	base.Info("turn.start")
	assert.NotContains(t, buf.String(), "sess-1")
}

func TestRuntimeLogger_ErrorWithStack(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&LoggerConfig{Level: LogLevelError, Format: "json", Output: &buf})
	logger.ErrorWithStack(errors.New("boom"), "run.failed", "run_id", "r-9")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "r-9", entry["run_id"])
	assert.Contains(t, entry["stack_trace"], "goroutine")
}

func TestNewSlogLogger_TextFormat(t *testing.T) {
	logger := NewSlogLogger(LogLevelInfo, "text", false)
	require.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.level)
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer

	var l Logger = NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Info("adapter.check", "k", "v")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "adapter.check", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	// All methods are safe to call and discard everything.
	l.Debug("a")
	l.Info("b", "k", "v")
	l.Warn("c")
	l.Error("d")
}
