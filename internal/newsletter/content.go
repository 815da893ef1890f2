package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/schedule"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// recentLogLimit is the number of email logs embedded in a content detail.
const recentLogLimit = 10

// CreateContentInput describes a new content item.
type CreateContentInput struct {
	TopicID     int64
	Title       string
	Body        string
	ScheduledAt time.Time
}

// UpdateContentInput carries a partial content update.
type UpdateContentInput struct {
	TopicID     *int64
	Title       *string
	Body        *string
	ScheduledAt *time.Time
}

// ContentDetail is a content item with its topic name, derived delivery
// counts and most recent delivery attempts.
type ContentDetail struct {
	storage.Content
	TopicName  string
	Counts     storage.EmailLogCounts
	RecentLogs []storage.EmailLogWithSubscriber
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationError("title is required")
	}
	if len([]rune(title)) > maxNameLength {
		return "", validationError("title must be at most %d characters", maxNameLength)
	}
	return title, nil
}

func (s *Service) requireFuture(at time.Time) error {
	if !at.After(s.now()) {
		return validationError("scheduledAt must be in the future")
	}
	return nil
}

// CreateContent persists a pending content item and schedules its dispatch.
// The row is committed only if the job was enqueued.
func (s *Service) CreateContent(ctx context.Context, in CreateContentInput) (storage.Content, error) {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return storage.Content{}, err
	}
	if strings.TrimSpace(in.Body) == "" {
		return storage.Content{}, validationError("body is required")
	}
	if err := s.requireFuture(in.ScheduledAt); err != nil {
		return storage.Content{}, err
	}

	var content storage.Content
	err = s.tx.InTx(ctx, func(q storage.Querier) error {
		if _, err := q.GetTopic(ctx, in.TopicID); err != nil {
			return storeError(fmt.Sprintf("topic %d", in.TopicID), err)
		}

		c, err := q.CreateContent(ctx, storage.CreateContentParams{
			TopicID:     in.TopicID,
			Title:       title,
			Body:        in.Body,
			ScheduledAt: in.ScheduledAt,
		})
		if err != nil {
			return storeError("content", err)
		}

		if err := s.scheduler.OnContentScheduled(ctx, c.ID, c.TopicID, c.ScheduledAt); err != nil {
			return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
		}
		content = c
		return nil
	})
	if err != nil {
		return storage.Content{}, err
	}

	s.log.Info().
		Int64("content_id", content.ID).
		Int64("topic_id", content.TopicID).
		Time("scheduled_at", content.ScheduledAt).
		Msg("content scheduled")
	return content, nil
}

// ListContent lists all content, or the content of one topic when topicID
// is non-nil.
func (s *Service) ListContent(ctx context.Context, topicID *int64) ([]storage.ContentWithCounts, error) {
	if topicID == nil {
		items, err := s.q.ListContent(ctx)
		if err != nil {
			return nil, fmt.Errorf("list content: %w", err)
		}
		return items, nil
	}

	if _, err := s.q.GetTopic(ctx, *topicID); err != nil {
		return nil, storeError(fmt.Sprintf("topic %d", *topicID), err)
	}
	items, err := s.q.ListContentByTopic(ctx, *topicID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return items, nil
}

func (s *Service) GetContent(ctx context.Context, id int64) (ContentDetail, error) {
	content, err := s.q.GetContent(ctx, id)
	if err != nil {
		return ContentDetail{}, storeError(fmt.Sprintf("content %d", id), err)
	}

	detail := ContentDetail{Content: content}

	topic, err := s.q.GetTopic(ctx, content.TopicID)
	if err != nil {
		return ContentDetail{}, storeError(fmt.Sprintf("topic %d", content.TopicID), err)
	}
	detail.TopicName = topic.Name

	if detail.Counts, err = s.q.CountEmailLogsByStatus(ctx, id); err != nil {
		return ContentDetail{}, fmt.Errorf("count email logs: %w", err)
	}
	detail.RecentLogs, err = s.q.ListEmailLogs(ctx, storage.ListEmailLogsParams{
		ContentID: id,
		Limit:     recentLogLimit,
	})
	if err != nil {
		return ContentDetail{}, fmt.Errorf("list email logs: %w", err)
	}
	return detail, nil
}

// ListContentLogs returns every delivery attempt of a content item,
// optionally filtered by status.
func (s *Service) ListContentLogs(ctx context.Context, id int64, status storage.EmailLogStatus) ([]storage.EmailLogWithSubscriber, error) {
	switch status {
	case "", storage.EmailLogStatusSent, storage.EmailLogStatusFailed:
	default:
		return nil, validationError("status must be sent or failed")
	}

	if _, err := s.q.GetContent(ctx, id); err != nil {
		return nil, storeError(fmt.Sprintf("content %d", id), err)
	}
	logs, err := s.q.ListEmailLogs(ctx, storage.ListEmailLogsParams{ContentID: id, Status: status})
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	return logs, nil
}

// UpdateContent edits content that has not been sent. Changing the topic
// or the send time re-enqueues the dispatch job, which replaces the
// pending one.
func (s *Service) UpdateContent(ctx context.Context, id int64, in UpdateContentInput) (storage.Content, error) {
	var updated storage.Content
	err := s.tx.InTx(ctx, func(q storage.Querier) error {
		current, err := q.GetContent(ctx, id)
		if err != nil {
			return storeError(fmt.Sprintf("content %d", id), err)
		}
		if current.Status == storage.ContentStatusSent {
			return fmt.Errorf("content %d: %w", id, ErrAlreadySent)
		}

		params := storage.UpdateContentParams{
			ID:          id,
			TopicID:     current.TopicID,
			Title:       current.Title,
			Body:        current.Body,
			ScheduledAt: current.ScheduledAt,
		}
		if in.Title != nil {
			if params.Title, err = normalizeTitle(*in.Title); err != nil {
				return err
			}
		}
		if in.Body != nil {
			if strings.TrimSpace(*in.Body) == "" {
				return validationError("body must not be empty")
			}
			params.Body = *in.Body
		}
		if in.ScheduledAt != nil && !in.ScheduledAt.Equal(current.ScheduledAt) {
			if err := s.requireFuture(*in.ScheduledAt); err != nil {
				return err
			}
			params.ScheduledAt = *in.ScheduledAt
		}
		if in.TopicID != nil && *in.TopicID != current.TopicID {
			if _, err := q.GetTopic(ctx, *in.TopicID); err != nil {
				return storeError(fmt.Sprintf("topic %d", *in.TopicID), err)
			}
			params.TopicID = *in.TopicID
		}

		updated, err = q.UpdateContent(ctx, params)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Sent by a worker between the read and the write.
				return fmt.Errorf("content %d: %w", id, ErrAlreadySent)
			}
			return storeError(fmt.Sprintf("content %d", id), err)
		}

		rescheduled := !params.ScheduledAt.Equal(current.ScheduledAt) || params.TopicID != current.TopicID
		if rescheduled {
			err := s.scheduler.Schedule(ctx, schedule.SourceUpdate, id, params.TopicID, params.ScheduledAt)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
			}
		}
		return nil
	})
	if err != nil {
		return storage.Content{}, err
	}
	return updated, nil
}

// DeleteContent removes content that has not been sent, along with its
// archived issue. A job still in the queue is discarded by the worker.
func (s *Service) DeleteContent(ctx context.Context, id int64) error {
	current, err := s.q.GetContent(ctx, id)
	if err != nil {
		return storeError(fmt.Sprintf("content %d", id), err)
	}
	if current.Status == storage.ContentStatusSent {
		return fmt.Errorf("content %d: %w", id, ErrAlreadySent)
	}

	if err := s.q.DeleteContent(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("content %d: %w", id, ErrAlreadySent)
		}
		return storeError(fmt.Sprintf("content %d", id), err)
	}

	s.deleteArchive(ctx, id)
	return nil
}

// RetryContent re-dispatches failed content, immediately or at its
// scheduled time if that is still ahead. Content in any other state is
// refused.
func (s *Service) RetryContent(ctx context.Context, id int64) (storage.Content, error) {
	current, err := s.q.GetContent(ctx, id)
	if err != nil {
		return storage.Content{}, storeError(fmt.Sprintf("content %d", id), err)
	}

	switch current.Status {
	case storage.ContentStatusFailed:
	case storage.ContentStatusSent:
		return storage.Content{}, fmt.Errorf("content %d: %w", id, ErrAlreadySent)
	default:
		return storage.Content{}, validationError("only failed content can be retried")
	}

	releaseAt := s.now()
	if current.ScheduledAt.After(releaseAt) {
		releaseAt = current.ScheduledAt
	}
	if err := s.scheduler.Schedule(ctx, schedule.SourceRetry, id, current.TopicID, releaseAt); err != nil {
		return storage.Content{}, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	s.log.Info().Int64("content_id", id).Msg("content retry scheduled")
	return current, nil
}

// GetArchivedIssue returns the web version stored when the content was
// dispatched.
func (s *Service) GetArchivedIssue(ctx context.Context, id int64) ([]byte, error) {
	html, err := s.archive.Get(ctx, archive.IssueKey(id))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, fmt.Errorf("archived issue %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get archived issue: %w", err)
	}
	return html, nil
}
