package logger

import "context"

type nopLogger struct{}

// NewNop returns a Logger that discards everything. Used in tests and as the
// default when a component is constructed without a logger.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...Field)        {}
func (nopLogger) Info(context.Context, string, ...Field)         {}
func (nopLogger) Warn(context.Context, string, ...Field)         {}
func (nopLogger) Error(context.Context, string, error, ...Field) {}
func (l nopLogger) WithComponent(string) Logger                  { return l }
