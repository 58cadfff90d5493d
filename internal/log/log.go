// Package log provides the structured logging conventions shared by every
// PyTrain component: a process-wide zerolog logger, canonical field names,
// and context-carried correlation IDs for client TCP sessions.
package log

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidLogLevel is returned when a level string cannot be parsed.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // "debug", "info", "warn", "error"; default "info"
	Output  io.Writer // defaults to os.Stdout
	Role    string    // "server" or "client"
	Version string
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure initializes the global logger. Safe to call once at process
// startup; subsequent calls replace the global logger atomically.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return ErrInvalidLogLevel
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	role := cfg.Role
	if role == "" {
		role = "server"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", "pytrain").
		Str("role", role).
		Str("version", cfg.Version).
		Logger()
	initialized = true
	return nil
}

// Logger returns the process-wide logger. If Configure was never called, a
// sane default (info level, stdout) is lazily installed.
func Logger() *zerolog.Logger {
	mu.RLock()
	if initialized {
		l := base
		mu.RUnlock()
		return &l
	}
	mu.RUnlock()

	_ = Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

type ctxKey int

const (
	keyCorrelationID ctxKey = iota
	keySessionID
)

// ContextWithCorrelationID attaches a correlation ID (e.g. a client UUID)
// to ctx so downstream log lines can be joined across goroutines.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, keyCorrelationID, id)
}

// CorrelationIDFromContext returns the correlation ID stashed by
// ContextWithCorrelationID, or "" if none is present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(keyCorrelationID).(string)
	return v
}

// ContextWithSessionID attaches a (scope, address) derived session
// identifier, used when logging component-state mutations.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, keySessionID, id)
}

// SessionIDFromContext mirrors ContextWithSessionID.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(keySessionID).(string)
	return v
}

// WithContext returns a logger enriched with any correlation/session IDs
// found in ctx, for use at call sites that don't want to duplicate the
// lookup logic.
func WithContext(ctx context.Context) zerolog.Logger {
	l := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.Str(FieldCorrelationID, id)
	}
	if id := SessionIDFromContext(ctx); id != "" {
		l = l.Str(FieldSessionID, id)
	}
	return l.Logger()
}
