// Package logger provides structured logging using zerolog.
//
// The optional diagnostics file is append-only with one line per event,
// prefixed by a millisecond timestamp.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DiagnosticsTimeFormat prefixes every line of the diagnostics file.
const DiagnosticsTimeFormat = "2006-01-02 15:04:05.000"

var globalLogger zerolog.Logger

// Config controls the process logger.
type Config struct {
	Level      string `yaml:"level"`
	Debug      bool   `yaml:"debug"`
	Output     string `yaml:"output"`
	TimeFormat string `yaml:"time_format"`
	// File, if set, receives a plain-text copy of every event.
	File string `yaml:"file"`
}

func init() {
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init configures the global logger. The returned closer releases the
// diagnostics file, if one was opened.
func Init(config Config) (io.Closer, error) {
	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var closer io.Closer = nopCloser{}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open diagnostics log: %w", err)
		}
		output = zerolog.MultiLevelWriter(output, NewDiagnosticsWriter(f))
		closer = f
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = globalLogger

	return closer, nil
}

// NewDiagnosticsWriter formats events as "<timestamp>: <level> <message> k=v" lines.
func NewDiagnosticsWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: DiagnosticsTimeFormat,
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("%v:", formatTime(i))
		},
	}
}

func formatTime(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return fmt.Sprint(i)
	}
	t, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return s
	}
	return t.Local().Format(DiagnosticsTimeFormat)
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// ForNode returns a node logger. Verbose nodes log at debug level; the
// others only write warnings and errors.
func ForNode(name string, verbose bool) zerolog.Logger {
	l := globalLogger.With().Str("node", name).Logger()
	if verbose {
		return l.Level(zerolog.DebugLevel)
	}
	return l.Level(zerolog.WarnLevel)
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}
