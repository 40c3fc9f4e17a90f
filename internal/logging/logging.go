// Package logging builds the zerolog loggers used by the Meffec binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	Level  string
	Format string
	// File, when set, receives a JSON copy of every line.
	File string
	// Out defaults to stderr.
	Out io.Writer
}

// New returns a logger and a closer for the optional log file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	case FormatJSON:
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("log format %q: want %s or %s", opts.Format, FormatConsole, FormatJSON)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
