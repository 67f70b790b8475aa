// Package logger defines the structured logging interface used throughout the
// keyfold trust core. Implementations live in internal/infrastructure/monitoring;
// a no-op logger is provided for tests and for callers that opt out of logging.
//
// Field keys that look like secret material (passwords, private keys, session
// keys) are redacted before a value reaches any sink.
package logger

import (
	"context"
	"strings"
	"time"
)

// Logger is the structured, context-aware logging interface.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, err error, fields ...Field)

	// WithComponent returns a logger that tags every entry with a component name.
	WithComponent(component string) Logger
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

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time creates an RFC 3339 time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Err creates an error field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

var sensitiveKeySubstrings = []string{
	"password",
	"passphrase",
	"private_key",
	"session_key",
	"secret",
}

// Redact replaces the value of fields whose key names secret material. Every
// Logger implementation must pass fields through Redact before emitting them.
func Redact(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		keyLower := strings.ToLower(f.Key)
		redacted := false
		for _, s := range sensitiveKeySubstrings {
			if strings.Contains(keyLower, s) {
				out[i] = Field{Key: f.Key, Value: "[REDACTED]"}
				redacted = true
				break
			}
		}
		if !redacted {
			out[i] = f
		}
	}
	return out
}
