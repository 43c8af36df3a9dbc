// Package logger holds the zerolog logger every service writes through.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log discards everything until Init runs.
var Log = zerolog.Nop()

// Init points Log at stdout. Every line carries the service name.
func Init(service, level string, pretty bool) {
	Log = newLogger(os.Stdout, service, level, pretty)
}

func newLogger(out io.Writer, service, level string, pretty bool) zerolog.Logger {
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).Level(levelOf(level)).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// levelOf falls back to info for empty or unknown names.
func levelOf(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// FromContext returns the request logger stored with zerolog's WithContext, or Log when
// the context carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &Log
}
