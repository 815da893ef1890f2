// Package newsletter implements the operator surface around the dispatch
// pipeline: topics, subscribers, subscriptions, content and stats.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/schedule"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("already exists")
	ErrValidation  = errors.New("validation failed")
	ErrAlreadySent = errors.New("content already sent")
	// ErrQueueUnavailable is returned when a dispatch job could not be
	// enqueued. Nothing was persisted.
	ErrQueueUnavailable = errors.New("dispatch queue unavailable")
)

// Scheduler enqueues dispatch jobs. *schedule.Trigger implements it.
type Scheduler interface {
	OnContentScheduled(ctx context.Context, contentID, topicID int64, scheduledAt time.Time) error
	Schedule(ctx context.Context, source schedule.Source, contentID, topicID int64, releaseAt time.Time) error
}

// TxRunner runs fn inside a database transaction. *storage.DB implements it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(storage.Querier) error) error
}

// Service holds the business rules of the CRUD surface.
type Service struct {
	q         storage.Querier
	tx        TxRunner
	scheduler Scheduler
	archive   archive.Store
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a Service. archiveStore may be nil.
func NewService(q storage.Querier, tx TxRunner, scheduler Scheduler, archiveStore archive.Store, log zerolog.Logger) *Service {
	if archiveStore == nil {
		archiveStore = archive.NopStore{}
	}
	return &Service{
		q:         q,
		tx:        tx,
		scheduler: scheduler,
		archive:   archiveStore,
		log:       log,
		now:       time.Now,
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError translates storage sentinels into package sentinels.
func storeError(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrReference):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// GetStats returns dashboard counters derived by COUNT queries.
func (s *Service) GetStats(ctx context.Context) (storage.Stats, error) {
	stats, err := s.q.GetStats(ctx)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}
