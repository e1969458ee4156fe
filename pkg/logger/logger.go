package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log = slog.Default()

// Level maps a -v count to a level: -1 error, 0 warn, 1 info, 2 and up
// debug.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity < 0:
		return slog.LevelError
	case verbosity == 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// Setup initializes the global logger based on the environment.
// If env is "production", it uses JSON handler.
// Otherwise, it uses Text handler (more human-readable).
func Setup(env string, verbosity int) *slog.Logger {
	return SetupWriter(os.Stderr, env, verbosity)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, env string, verbosity int) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: Level(verbosity),
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return Log
}
