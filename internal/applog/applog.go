// Package applog wraps zerolog for the server. The logger is built
// once by Bootstrap and threaded through every component by reference;
// there is no package-level singleton (see design notes on global
// mutable state).
package applog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures logger construction.
type Options struct {
	JSON   bool
	Level  zerolog.Level
	Output io.Writer
}

// New builds a root logger from Options.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if opts.JSON {
		base = zerolog.New(out)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return base.Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component's
// name, the pattern every component in this server uses for its own
// logger field.
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
