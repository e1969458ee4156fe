package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      slog.Level
	}{
		{-3, slog.LevelError},
		{-1, slog.LevelError},
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelDebug},
		{5, slog.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestSetupWriter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Run("production is json", func(t *testing.T) {
		var buf bytes.Buffer
		l := SetupWriter(&buf, "production", 1)
		l.Info("Initializing", "module", "std")
		l.Debug("hidden")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var rec map[string]any
		require.NoError(t, gojson.Unmarshal([]byte(lines[0]), &rec))
		assert.Equal(t, "Initializing", rec["msg"])
		assert.Equal(t, "std", rec["module"])
		assert.Same(t, l, Log)
	})

	t.Run("development is text", func(t *testing.T) {
		var buf bytes.Buffer
		l := SetupWriter(&buf, "development", 0)
		l.Info("hidden")
		l.Warn("Failed to find function", "symbol", "nope")
		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "symbol=nope")
	})
}
