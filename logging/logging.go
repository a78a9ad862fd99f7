// Package logging builds the zerolog logger shared by all commands.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	// Out is the destination; os.Stderr when nil.
	Out io.Writer
	// Verbose lowers the level to debug.
	Verbose bool
	// JSON emits one JSON object per line instead of console output.
	JSON bool
	// NoColor disables ANSI colors in console output.
	NoColor bool
}

// New creates a structured logger. Console output mirrors the
// "[INFO] message" feel of the CLI; JSON output is meant for cron logs.
func New(opts Options) zerolog.Logger {
	var w io.Writer = opts.Out
	if w == nil {
		w = os.Stderr
	}
	if !opts.JSON {
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Printf adapts a zerolog logger to Printf-style consumers such as the
// gorm logger. Lines are emitted at debug level.
type Printf struct {
	Logger zerolog.Logger
}

func (p Printf) Printf(format string, args ...any) {
	p.Logger.Debug().Msgf(format, args...)
}
