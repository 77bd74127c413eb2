// Package observability provides unified logging, metrics, and tracing
// for the agent router. All components log through the Logger interface
// and record metrics through MetricsClient so that test doubles can be
// swapped in without touching business logic.
package observability

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// WithPrefix returns a derived logger for a sub-component
	WithPrefix(prefix string) Logger
}

// StandardLogger is a logger implementation that uses the standard log package
type StandardLogger struct {
	prefix string
	level  LogLevel
}

// NewLogger creates a new StandardLogger with the given prefix
func NewLogger(prefix string) Logger {
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo,
	}
}

// NewLoggerWithLevel creates a logger that emits messages at or above level
func NewLoggerWithLevel(prefix string, level LogLevel) Logger {
	return &StandardLogger{
		prefix: prefix,
		level:  level,
	}
}

// Debug logs a debug message
func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelDebug) {
		l.log(LogLevelDebug, msg, fields)
	}
}

// Info logs an info message
func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelInfo) {
		l.log(LogLevelInfo, msg, fields)
	}
}

// Warn logs a warning message
func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelWarn) {
		l.log(LogLevelWarn, msg, fields)
	}
}

// Error logs an error message
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LogLevelError, msg, fields)
}

// Fatal logs a fatal message and exits
func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

// WithPrefix returns a new logger with the given prefix appended
func (l *StandardLogger) WithPrefix(prefix string) Logger {
	combined := prefix
	if l.prefix != "" {
		combined = l.prefix + "." + prefix
	}
	return &StandardLogger{
		prefix: combined,
		level:  l.level,
	}
}

func (l *StandardLogger) levelEnabled(level LogLevel) bool {
	order := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
		LogLevelFatal: 4,
	}
	return order[level] >= order[l.level]
}

func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	log.Printf("[%s] [%s] %s%s", level, l.prefix, msg, formatFields(fields))
}

// formatFields renders fields deterministically (sorted by key) so that
// log lines are stable for grepping and tests.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(" |")
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	return sb.String()
}

// NoopLogger discards all log messages. Used in tests.
type NoopLogger struct{}

func (NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (NoopLogger) Fatal(msg string, fields map[string]interface{}) {}
func (NoopLogger) WithPrefix(prefix string) Logger                 { return NoopLogger{} }

var _ Logger = (*StandardLogger)(nil)
var _ Logger = NoopLogger{}
