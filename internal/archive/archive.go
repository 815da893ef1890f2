// Package archive keeps the rendered web version of dispatched issues.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no archived issue exists under a key.
var ErrNotFound = errors.New("archive: issue not found")

// Store persists rendered issues by key.
type Store interface {
	Put(ctx context.Context, key string, html []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures the archive backend.
type Config struct {
	Type       string `mapstructure:"type"` // "local", "s3" or "none"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

// IssueKey returns the archive key of a content item.
func IssueKey(contentID int64) string {
	return "content-" + strconv.FormatInt(contentID, 10) + ".html"
}

// New builds the Store selected by cfg.Type. An empty type or "none"
// yields a NopStore.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return NopStore{}, nil
	case "local":
		return NewLocalStore(cfg.Path)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("archive: s3_bucket is required")
		}
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported archive type, archiving disabled")
		return NopStore{}, nil
	}
}

// NopStore discards writes and never finds anything.
type NopStore struct{}

func (NopStore) Put(context.Context, string, []byte) error { return nil }

func (NopStore) Get(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (NopStore) Delete(context.Context, string) error { return nil }
