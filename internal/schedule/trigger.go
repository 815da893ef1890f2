// Package schedule turns scheduled content into delayed dispatch jobs.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
)

// Source names the path that produced a dispatch job.
type Source string

const (
	SourceCreate    Source = "create"
	SourceUpdate    Source = "update"
	SourceRetry     Source = "retry"
	SourceReconcile Source = "reconcile"
)

// Trigger enqueues one dispatch job per scheduled content item.
type Trigger struct {
	enqueuer queue.Enqueuer
	log      zerolog.Logger
}

// NewTrigger creates a Trigger backed by the given Enqueuer.
func NewTrigger(enqueuer queue.Enqueuer, log zerolog.Logger) *Trigger {
	return &Trigger{
		enqueuer: enqueuer,
		log:      log,
	}
}

// OnContentScheduled enqueues the dispatch job of a newly created content
// item, released at scheduledAt. It does not validate scheduledAt.
func (t *Trigger) OnContentScheduled(ctx context.Context, contentID, topicID int64, scheduledAt time.Time) error {
	return t.Schedule(ctx, SourceCreate, contentID, topicID, scheduledAt)
}

// Schedule enqueues a dispatch job released at releaseAt. Enqueueing the
// same content again replaces its pending job on backends that support it.
func (t *Trigger) Schedule(ctx context.Context, source Source, contentID, topicID int64, releaseAt time.Time) error {
	msg := queue.NewMessage(queue.Job{ContentID: contentID, TopicID: topicID}, releaseAt)

	id, err := t.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		metrics.ScheduleEnqueueTotal.WithLabelValues(string(source), "error").Inc()
		t.log.Error().Err(err).
			Str("source", string(source)).
			Int64("content_id", contentID).
			Msg("failed to enqueue dispatch job")
		return fmt.Errorf("enqueue dispatch job: %w", err)
	}

	metrics.ScheduleEnqueueTotal.WithLabelValues(string(source), "ok").Inc()
	t.log.Info().
		Str("source", string(source)).
		Str("job_id", id).
		Int64("content_id", contentID).
		Int64("topic_id", topicID).
		Time("release_at", releaseAt).
		Msg("dispatch job scheduled")

	return nil
}
