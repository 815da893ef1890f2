// Package logger builds the zerolog loggers shared by the api-server and the
// dispatch worker and carries them, with the request correlation ID, through
// context.Context.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoggingConfig is the logging section of the process config.
type LoggingConfig struct {
	Level string
	// Output is "stdout" (default), "file" or "both".
	Output    string
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
	// Service is stamped on every line, e.g. "dispatch-worker".
	Service string
}

type correlationKey struct{}

// New returns a JSON logger on stdout. Unknown or empty levels mean info.
func New(level string) zerolog.Logger {
	return newLogger(os.Stdout, level, "")
}

// NewFromConfig returns a JSON logger writing to the destination chosen by
// cfg.Output.
func NewFromConfig(cfg LoggingConfig) zerolog.Logger {
	var w io.Writer = os.Stdout
	switch cfg.Output {
	case "file":
		w = NewFileWriter(cfg)
	case "both":
		w = zerolog.MultiLevelWriter(os.Stdout, NewFileWriter(cfg))
	}
	return newLogger(w, cfg.Level, cfg.Service)
}

func newLogger(w io.Writer, level, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	c := zerolog.New(w).Level(lvl).With().Timestamp()
	if service != "" {
		c = c.Str("service", service)
	}
	return c.Logger()
}

// WithLogger attaches l to ctx. Disabled loggers are not stored.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns "" outside a request.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// FromContext returns the logger attached by WithLogger, or a disabled
// logger, with the correlation ID field added when one is set.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if id := CorrelationIDFromContext(ctx); id != "" {
		withID := l.With().Str("correlation_id", id).Logger()
		return &withID
	}
	return l
}

func NewCorrelationID() string {
	return uuid.NewString()
}
