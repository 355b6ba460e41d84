package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var pid = os.Getpid()

// Logger is a thin wrapper over zerolog so packages do not depend on a
// global logger instance.
type Logger struct {
	logger *zerolog.Logger
}

// New returns a JSON logger writing to stderr.
func New(debug bool) *Logger {
	return newWithWriter(os.Stderr, debug)
}

// NewConsole returns a human readable logger tagged with the service name.
func NewConsole(debug bool, tag string, noColor bool) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05.0000",
		NoColor:    noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"s",
			"c",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"s", "c", "pid"},
	}
	logger := zerolog.New(output).
		Level(levelFor(debug)).
		With().
		Str("pid", fmt.Sprintf("%4x", pid)).
		Str("s", tag).
		Timestamp().
		Logger()
	return &Logger{logger: &logger}
}

// NewWriter is used by tests that want to inspect log output.
func NewWriter(w io.Writer, debug bool) *Logger { return newWithWriter(w, debug) }

// Nop discards everything.
func Nop() *Logger {
	logger := zerolog.Nop()
	return &Logger{logger: &logger}
}

func newWithWriter(w io.Writer, debug bool) *Logger {
	logger := zerolog.New(w).
		Level(levelFor(debug)).
		With().
		Timestamp().
		Fields(map[string]any{"pid": pid}).
		Logger()
	return &Logger{logger: &logger}
}

func levelFor(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// With creates a child logger context.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Component tags every event of the returned logger with the component name.
func (l *Logger) Component(name string) *Logger {
	return l.Extend(l.With().Str("c", name))
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }
