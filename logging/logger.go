// Package logging defines the Logger interface the runtime logs through and
// a slog-backed implementation of it. RuntimeLogger adds contextual cloning
// (component, session, extra attributes) on top of slog, so every entry of a
// scoped logger carries the same identifying fields.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"runtime"
)

// LogLevel selects the minimum severity a logger emits.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the level name in upper case.
func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}

	return levelNames[l]
}

// slogLevel maps the level onto its slog equivalent.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the minimal interface runtime components log through. Args follow
// the slog convention: alternating key-value pairs appended to the message.
// Callers can provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// SlogAdapter exposes an existing *slog.Logger through the Logger interface.
// The interface methods are promoted from the embedded logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a RuntimeLogger.
type LoggerConfig struct {
	Level        LogLevel
	Format       string // json or text
	Output       io.Writer
	AddSource    bool
	Component    string
	SessionID    string
	InvocationID string
	CustomAttrs  map[string]any
}

// DefaultLoggerConfig returns a JSON, info level configuration writing to stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LogLevelInfo,
		Format:      "json",
		Output:      os.Stdout,
		AddSource:   true,
		CustomAttrs: map[string]any{},
	}
}

// NewLogger builds a RuntimeLogger from a config, or from DefaultLoggerConfig
// when cfg is nil. CustomAttrs seed the contextual attributes that WithContext
// extends later.
func NewLogger(cfg *LoggerConfig) *RuntimeLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	attrs := make(map[string]any, len(cfg.CustomAttrs))
	maps.Copy(attrs, cfg.CustomAttrs)

	return &RuntimeLogger{
		logger:       slog.New(handler),
		level:        cfg.Level,
		context:      attrs,
		component:    cfg.Component,
		sessionID:    cfg.SessionID,
		invocationID: cfg.InvocationID,
	}
}

// RuntimeLogger is a slog-backed Logger carrying contextual fields. The With*
// methods return scoped copies, so one base logger can fan out per component
// and per session without the scopes leaking into each other.
type RuntimeLogger struct {
	logger       *slog.Logger
	level        LogLevel
	context      map[string]any
	component    string
	sessionID    string
	invocationID string
}

func (l *RuntimeLogger) clone() *RuntimeLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context)+1)
	maps.Copy(nl.context, l.context)

	return &nl
}

// WithContext adds a key/value attribute attached to every log entry.
func (l *RuntimeLogger) WithContext(key string, value any) *RuntimeLogger {
	nl := l.clone()
	nl.context[key] = value

	return nl
}

// WithComponent sets the logical component (agent, runner, server, etc.).
func (l *RuntimeLogger) WithComponent(c string) *RuntimeLogger {
	nl := l.clone()
	nl.component = c

	return nl
}

// WithSession attaches session and invocation identifiers.
func (l *RuntimeLogger) WithSession(sid, iid string) *RuntimeLogger {
	nl := l.clone()
	nl.sessionID = sid
	nl.invocationID = iid

	return nl
}

// scopeAttrs renders the contextual fields of this logger as attrs.
func (l *RuntimeLogger) scopeAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)

	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.invocationID != "" {
		attrs = append(attrs, slog.String("invocation_id", l.invocationID))
	}

	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}

	return attrs
}

func (l *RuntimeLogger) log(level LogLevel, msg string, args []any) {
	if level < l.level {
		return
	}

	attrs := append(l.scopeAttrs(), attrsFromArgs(args)...)
	l.logger.LogAttrs(context.Background(), level.slogLevel(), msg, attrs...)
}

const badKey = "!BADKEY"

// attrsFromArgs converts slog-convention variadic args (alternating keys and
// values, bare slog.Attr values passed through) into attrs.
func attrsFromArgs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for len(args) > 0 {
		switch arg := args[0].(type) {
		case string:
			if len(args) == 1 {
				attrs = append(attrs, slog.String(badKey, arg))
				return attrs
			}
			attrs = append(attrs, slog.Any(arg, args[1]))
			args = args[2:]
		case slog.Attr:
			attrs = append(attrs, arg)
			args = args[1:]
		default:
			attrs = append(attrs, slog.Any(badKey, arg))
			args = args[1:]
		}
	}

	return attrs
}

// Debug logs at debug level.
func (l *RuntimeLogger) Debug(msg string, args ...any) { l.log(LogLevelDebug, msg, args) }

// Info logs at info level.
func (l *RuntimeLogger) Info(msg string, args ...any) { l.log(LogLevelInfo, msg, args) }

// Warn logs at warn level.
func (l *RuntimeLogger) Warn(msg string, args ...any) { l.log(LogLevelWarn, msg, args) }

// Error logs at error level.
func (l *RuntimeLogger) Error(msg string, args ...any) { l.log(LogLevelError, msg, args) }

// ErrorWithStack logs an error with its type and a stack snapshot of the
// calling goroutine.
func (l *RuntimeLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}

	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	attrs := append(l.scopeAttrs(),
		slog.String("error", err.Error()),
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("stack_trace", string(stack[:n])),
	)
	attrs = append(attrs, attrsFromArgs(args)...)

	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// NewSlogLogger creates a RuntimeLogger with the given level, format ("json"
// or "text") and source annotation, writing to stdout.
func NewSlogLogger(level LogLevel, format string, addSource bool) *RuntimeLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource

	return NewLogger(cfg)
}
