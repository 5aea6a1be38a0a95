package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/masq"
)

var (
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	mu            sync.RWMutex
)

// Format is the output format of the logger
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// secretFieldNames are redacted wherever they appear as struct field or
// attribute names
var secretFieldNames = []string{
	"Token", "Secret", "Password", "SigningSecret", "APIKey", "PrivateKey",
	"BotToken", "EncryptionKey", "JWTSecret", "Credentials",
}

// NewHandler builds the slog handler for the given writer, format and level
// with secret redaction applied.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	opts := []masq.Option{
		masq.WithTag("secret"),
		masq.WithFieldPrefix("secret_"),
	}
	for _, name := range secretFieldNames {
		opts = append(opts, masq.WithFieldName(name))
	}
	filter := masq.New(opts...)

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: filter,
		})
	default:
		return clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithReplaceAttr(filter),
			clog.WithSource(true),
		)
	}
}

// New creates a logger with NewHandler
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(w, format, level))
}

// Default returns the process wide logger
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process wide logger
func SetDefault(logger *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
	slog.SetDefault(logger)
}

type ctxLoggerKey struct{}

// With returns a context carrying logger
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the logger of ctx or the default logger
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// WithAttrs returns a context whose logger carries the attributes
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, From(ctx).With(args...))
}

// ParseLevel converts a level name to slog.Level
func ParseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
