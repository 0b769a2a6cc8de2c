// Package logger provides the structured logger used across faultwatch.
//
// Components receive a Logger through their constructors and attach typed
// fields to each entry. The default backend writes JSON through zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a configuration string into a LogLevel.
// Unknown values fall back to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is the logging interface injected into every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger
	// Module returns a child logger tagged with a module name.
	Module(name string) Logger
}

// Options tunes the zerolog backend.
type Options struct {
	// Console switches to human readable output.
	Console bool
	// Caller adds the calling file and line to each entry.
	Caller bool
}

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a Logger writing to w at the given level.
// A nil w writes to stdout.
func NewZerologLogger(w io.Writer, level LogLevel, opts *Options) Logger {
	if w == nil {
		w = os.Stdout
	}
	if opts == nil {
		opts = &Options{}
	}
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(level.zerolog()).With().Timestamp()
	if opts.Caller {
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2)
	}
	return &zerologLogger{zl: ctx.Logger()}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

func (l *zerologLogger) Debug(msg string, fields ...Field) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...Field) {
	emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...Field) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...Field) {
	emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.applyContext(ctx)
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) Module(name string) Logger {
	return &zerologLogger{zl: l.zl.With().Str("module", name).Logger()}
}

func emit(ev *zerolog.Event, msg string, fields []Field) {
	// Disabled levels return a nil event.
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = f.applyEvent(ev)
	}
	ev.Msg(msg)
}
