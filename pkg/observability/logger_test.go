package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger_Formats(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LogConfig{Format: LogFormatText, Output: &buf}).Info("communication scheduled", "channel", "email")

		assert.Contains(t, buf.String(), "communication scheduled")
		assert.Contains(t, buf.String(), "channel=email")
	})

	t.Run("json with service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LogConfig{
			Format:         LogFormatJSON,
			Output:         &buf,
			ServiceName:    "cadence",
			ServiceVersion: "1.2.3",
		}).Info("communication scheduled", "channel", "email")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "communication scheduled", entry["msg"])
		assert.Equal(t, "email", entry["channel"])
		assert.Equal(t, "cadence", entry["service"])
		assert.Equal(t, "1.2.3", entry["version"])
	})
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "WARN", Format: LogFormatText, Output: &buf})

	logger.Debug("tick")
	logger.Info("scheduled")
	logger.Warn("retrying")
	logger.Error("gave up")

	out := buf.String()
	assert.NotContains(t, out, "tick")
	assert.NotContains(t, out, "scheduled")
	assert.Contains(t, out, "retrying")
	assert.Contains(t, out, "gave up")
}

func TestNewLogger_ContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).With("component", "loop")

	ctx := WithRequestID(WithCorrelationID(context.Background(), "corr-123"), "req-456")
	logger.WithGroup("tick").InfoContext(ctx, "orchestration tick completed", "submitted", 1)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "loop", entry["component"])
	group, ok := entry["tick"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "corr-123", group[CorrelationIDKey])
	assert.Equal(t, "req-456", group[RequestIDKey])
}

func TestNewLogger_NoContextIDsWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).Info("plain")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, CorrelationIDKey)
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.want, parseSlogLevel(tt.input))
		})
	}
}

func TestLogConfigs(t *testing.T) {
	dev := DefaultLogConfig()
	assert.Equal(t, LogFormatText, dev.Format)
	assert.Equal(t, "cadence", dev.ServiceName)

	prod := ProductionLogConfig()
	assert.Equal(t, LogFormatJSON, prod.Format)
	assert.True(t, prod.AddSource)
}
