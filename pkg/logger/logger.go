// Package logger builds the zerolog logger shared across the engine.
// Components receive a logger by injection; nothing reads a global.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	// Level is one of debug|info|warn|error. Unrecognised values fall back
	// to info.
	Level string
	// Console switches from JSON lines to human-readable console output.
	Console bool
	// Writer overrides the destination (default os.Stderr). Used by tests.
	Writer io.Writer
}

// New constructs a leveled zerolog.Logger with timestamps.
func New(opts Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if opts.Writer != nil {
		w = opts.Writer
	}
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(parseLevel(opts.Level)).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
