package logger

import (
	"io"
	"log/slog"
	"os"
)

func New(app, env string) *slog.Logger {
	return NewWriter(os.Stdout, app, env)
}

// NewWriter is New with an explicit destination; CLIs log to stderr so stdout
// stays free for command output.
func NewWriter(w io.Writer, app, env string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(h).With(
		slog.String("app", app),
		slog.String("env", env),
	)
}
