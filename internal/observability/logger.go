package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the JSON logger every service uses. Records carry the
// service name and, when a span is active, its trace and span ids.
func NewLogger(env, service string) *slog.Logger {
	return newLogger(os.Stdout, env, service)
}

func newLogger(w io.Writer, env, service string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler)).With("service", service)
}
