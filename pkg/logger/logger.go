// Package logger builds the zerolog loggers used by the training tools.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects output format and verbosity.
type Mode string

const (
	ModeDebug  Mode = "debug"
	ModePretty Mode = "pretty"
	ModeInfo   Mode = "info"
	ModeProd   Mode = "prod"
	ModeTest   Mode = "test"
)

// ParseMode maps a flag value to a Mode. An empty value selects
// ModePretty.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDebug, ModePretty, ModeInfo, ModeProd, ModeTest:
		return m, nil
	case "":
		return ModePretty, nil
	default:
		return "", errors.Errorf("unknown log mode %q (want debug, pretty, info, prod or test)", s)
	}
}

// New returns a logger writing to w in the given mode.
//
//	debug   console output, debug level
//	pretty  console output, info level
//	info    JSON, info level
//	prod    JSON, warn level
//	test    discards everything
func New(mode Mode, w io.Writer) zerolog.Logger {
	switch mode {
	case ModeTest:
		return zerolog.Nop()
	case ModeDebug:
		return zerolog.New(console(w)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	case ModeInfo:
		return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	case ModeProd:
		return zerolog.New(w).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	default:
		return zerolog.New(console(w)).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
}

// Init installs a stderr logger for mode as the global logger.
func Init(mode Mode) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = New(mode, os.Stderr)
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

// WithComponent returns the global logger tagged with a component name.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func console(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
	}
}
