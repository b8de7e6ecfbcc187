package app

import (
	"io"
	"log/slog"
)

// newLogger builds the App's isolated slog.Logger from the CLI level and
// format options. Both the serve and replay paths share it, writing to the
// same sink as the rendered tree; the global default logger is left alone so
// embedding callers and tests keep theirs.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "text" {
		return slog.New(slog.NewTextHandler(outW, opts))
	}
	return slog.New(slog.NewJSONHandler(outW, opts))
}
