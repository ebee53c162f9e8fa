// Package logging defines the structured-logging interface used across
// tokenkeeper, with slog and zap implementations.
package logging

import (
	"context"
	"fmt"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "login denied", "reason", "bad_password")
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Backend names accepted by New.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// New builds a JSON logger writing to stdout for the given backend and level
// ("debug", "info", "warn", "error").
func New(backend, level string) (Logger, error) {
	switch strings.ToLower(backend) {
	case "", BackendSlog:
		return NewSlogJSONLogger(level), nil
	case BackendZap:
		l, err := NewZapJSONLogger(level)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

// Sync flushes l when its backend buffers entries and is a no-op otherwise.
func Sync(l Logger) error {
	if s, ok := l.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }
