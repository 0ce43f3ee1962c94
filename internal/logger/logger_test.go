package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestJSONLoggerWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "info", true)

	log.Debug("hidden")
	log.Info("group created", "group_id", "g1")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"group created"`)
	require.Contains(t, out, `"group_id":"g1"`)
}
