// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer RunLogger with contextual
// cloning helpers (run, component, attrs) and package-level domain helpers
// for node transitions, tool calls, model calls and admission decisions.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
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

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

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

// Logger defines the minimal logging interface the library depends on.
// This allows users to provide their own logger implementation or use the
// built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return &SlogAdapter{Logger: slog.Default()}
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NoOpLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NoOpLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NoOpLogger) Error(string, ...any) {}

var _ Logger = NoOpLogger{}
var _ Logger = (*SlogAdapter)(nil)
var _ Logger = (*RunLogger)(nil)

// RunLoggerConfig configures construction of a RunLogger.
type RunLoggerConfig struct {
	Level LogLevel
	// Format is "json" or "text".
	Format string
	Output io.Writer
	// Component tags every record, e.g. "workflow" or "admission".
	Component string
}

// RunLogger wraps slog.Logger adding contextual cloning helpers and domain
// specific structured logging for the orchestration pipeline.
type RunLogger struct {
	logger    *slog.Logger
	component string
	runID     string
	attrs     []slog.Attr
}

// NewRunLogger builds a RunLogger from a config (or defaults if nil).
func NewRunLogger(cfg *RunLoggerConfig) *RunLogger {
	if cfg == nil {
		cfg = &RunLoggerConfig{Level: LogLevelInfo, Format: "text"}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &RunLogger{logger: slog.New(handler), component: cfg.Component}
}

func (l *RunLogger) clone() *RunLogger {
	attrs := make([]slog.Attr, len(l.attrs))
	copy(attrs, l.attrs)
	return &RunLogger{logger: l.logger, component: l.component, runID: l.runID, attrs: attrs}
}

// WithComponent returns a copy tagged with the given component.
func (l *RunLogger) WithComponent(c string) *RunLogger {
	out := l.clone()
	out.component = c
	return out
}

// WithRun returns a copy tagged with the given run id.
func (l *RunLogger) WithRun(runID string) *RunLogger {
	out := l.clone()
	out.runID = runID
	return out
}

// WithAttr returns a copy carrying an extra structured attribute.
func (l *RunLogger) WithAttr(key string, value any) *RunLogger {
	out := l.clone()
	out.attrs = append(out.attrs, slog.Any(key, value))
	return out
}

func (l *RunLogger) log(level slog.Level, msg string, args ...any) {
	logger := l.logger
	if l.component != "" {
		logger = logger.With("component", l.component)
	}
	if l.runID != "" {
		logger = logger.With("run_id", l.runID)
	}
	for _, attr := range l.attrs {
		logger = logger.With(attr.Key, attr.Value)
	}
	logger.Log(context.Background(), level, msg, args...)
}

// Debug implements Logger.
func (l *RunLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info implements Logger.
func (l *RunLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn implements Logger.
func (l *RunLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error implements Logger.
func (l *RunLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogTransition records one node transition within a run.
func LogTransition(l Logger, runID, from, to string, iteration int) {
	l.Debug("transition", "run_id", runID, "from", from, "to", to, "iteration", iteration)
}

// LogToolCall records the outcome of one external tool call.
func LogToolCall(l Logger, tool string, dur time.Duration, err error) {
	if err != nil {
		l.Warn("tool call failed", "tool", tool, "duration_ms", dur.Milliseconds(), "error", err)
		return
	}
	l.Debug("tool call completed", "tool", tool, "duration_ms", dur.Milliseconds())
}

// LogModelCall records the outcome of one completion call.
func LogModelCall(l Logger, model string, tokens int, dur time.Duration, err error) {
	if err != nil {
		l.Warn("model call failed", "model", model, "duration_ms", dur.Milliseconds(), "error", err)
		return
	}
	l.Debug("model call completed", "model", model, "tokens", tokens, "duration_ms", dur.Milliseconds())
}

// LogAdmission records an admission decision for a caller.
func LogAdmission(l Logger, callerKey string, allowed bool, scope string, retryAfter time.Duration) {
	if allowed {
		l.Debug("request admitted", "caller", callerKey)
		return
	}
	l.Info("request rejected", "caller", callerKey, "scope", scope, "retry_after_ms", retryAfter.Milliseconds())
}
