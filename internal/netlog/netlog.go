// Package netlog builds the fanout logger shared by every subsystem's
// entrypoint: colorized console output plus an optional plain-text file
// sink, following the same tint+slog-multi setup the rest of this course's
// networked daemons use.
package netlog

import (
	"io"
	"log/slog"
	"os"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Options configures the fanout logger.
type Options struct {
	// Debug enables slog.LevelDebug on the console handler.
	Debug bool
	// File, if non-nil, receives a plain-text copy of every record
	// regardless of the console's level.
	File io.Writer
}

// New builds a *slog.Logger that writes colorized, human-readable lines to
// stderr and, if Options.File is set, a plain-text copy to it. It never
// returns nil.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		}),
	}
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// Discard is a logger that drops every record; useful as a zero-value
// substitute in tests that don't care about diagnostics.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
