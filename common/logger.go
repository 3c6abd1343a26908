package common

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process logger. NewLogger replaces it at startup.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Str("service", "posterpro").Logger()

// NewLogger builds a logger for the given level and format ("console" or
// "json") and installs it as Log.
func NewLogger(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if format == "json" {
		zl = zerolog.New(out)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	zl = zl.Level(lvl).With().Timestamp().Str("service", "posterpro").Logger()

	Log = zl
	return zl
}
