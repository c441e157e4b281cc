package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestInitLoggerJSONWithCorrelation(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	InitLogger(&buf, "debug", "json")
	buf.Reset()

	ctx := WithCorrelation(context.Background(), "cycle-1")
	assert.Equal(t, "cycle-1", GetCorrelation(ctx))
	LoggerWithCorr(ctx).Info("poll")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "poll", rec["msg"])
	assert.Equal(t, "cycle-1", rec["corr"])
}

func TestInitLoggerUnknownLevelWarns(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	InitLogger(&buf, "loud", "text")
	assert.True(t, strings.Contains(buf.String(), "unknown LOG_LEVEL"))
	assert.Empty(t, GetCorrelation(context.Background()))
}
