// Package logging provides structured logging for the MCP engine.
//
// Log output defaults to stderr so diagnostic text can never pollute the
// stdio protocol stream on stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// DebugLevel is for detailed information useful for debugging.
	DebugLevel Level = iota - 1
	// InfoLevel is for general informational messages.
	InfoLevel
	// WarnLevel is for warning messages.
	WarnLevel
	// ErrorLevel is for error messages.
	ErrorLevel
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Any creates a field with any value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// ErrorField creates an error field.
func ErrorField(err error) Field { return Field{Key: "error", Value: err} }

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithFields returns a new logger whose entries carry the extra fields.
	WithFields(fields ...Field) Logger

	// SetLevel sets the minimum log level.
	SetLevel(level Level)
}

type baseLogger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	fields []Field
}

// New creates a logger writing formatted entries to output. A nil output
// defaults to stderr.
func New(output io.Writer, level Level) Logger {
	if output == nil {
		output = os.Stderr
	}
	return &baseLogger{level: level, output: output}
}

// Default returns a stderr logger at info level.
func Default() Logger {
	return New(os.Stderr, InfoLevel)
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return New(io.Discard, ErrorLevel+1)
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *baseLogger) WithFields(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &baseLogger{level: l.level, output: l.output, fields: merged}
}

func (l *baseLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *baseLogger) log(level Level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", time.Now().Format("2006-01-02 15:04:05"), level, msg)

	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for _, f := range l.fields {
		all[f.Key] = f.Value
	}
	for _, f := range fields {
		all[f.Key] = f.Value
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(l.output, b.String())
}
