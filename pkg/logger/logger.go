package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/manuscript-desk-poc/server/internal/core"
)

const serviceName = "manuscript-desk"

type LoggerOpts struct {
	Environment core.Environment
	// Level overrides the environment default ("debug", "info", ...).
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

func (o LoggerOpts) level() zerolog.Level {
	raw := o.Level
	if raw == "" {
		raw = o.Environment.DefaultLogLevel()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Init replaces the global logger. Without options it logs debug to a console
// writer on stderr.
func Init(opts ...LoggerOpts) {
	o := LoggerOpts{Environment: core.Development}
	if len(opts) > 0 {
		o = opts[0]
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.DurationFieldUnit = time.Millisecond
	var l zerolog.Logger
	if o.Environment.UsesConsoleLogs() {
		l = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}).
			With().Timestamp().Caller().Logger()
	} else {
		l = zerolog.New(out).With().
			Timestamp().
			Str("service", serviceName).
			Str("env", o.Environment.String()).
			Logger()
	}
	log.Logger = l.Level(o.level())
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}
