package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger. File is optional; when set, records
// are written to stdout and to a size-rotated file.
type Options struct {
	Level  string // "debug", "info", "warn", "error" (default "info")
	Format string // "json" or "text" (default "json")

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a structured stdout logger with the given level and format.
func New(level, format string) *slog.Logger {
	return NewWithOptions(Options{Level: level, Format: format})
}

// NewWithOptions builds the logger described by opts.
func NewWithOptions(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
	}
	return slog.New(newHandler(out, opts.Level, opts.Format))
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	ho := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "text" {
		return slog.NewTextHandler(w, ho)
	}
	return slog.NewJSONHandler(w, ho)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
