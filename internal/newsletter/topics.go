package newsletter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

const maxNameLength = 255

// TopicDetail is a topic with its subscribers and content.
type TopicDetail struct {
	storage.Topic
	Subscribers []storage.Subscriber
	Content     []storage.ContentWithCounts
}

// UpdateTopicInput carries a partial topic update. Nil fields are kept.
type UpdateTopicInput struct {
	Name        *string
	Description *string
}

func normalizeTopicName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return "", validationError("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func optionalText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	return pgtype.Text{String: s, Valid: s != ""}
}

func (s *Service) CreateTopic(ctx context.Context, name, description string) (storage.Topic, error) {
	name, err := normalizeTopicName(name)
	if err != nil {
		return storage.Topic{}, err
	}

	topic, err := s.q.CreateTopic(ctx, storage.CreateTopicParams{
		Name:        name,
		Description: optionalText(description),
	})
	if err != nil {
		return storage.Topic{}, storeError("topic "+name, err)
	}
	return topic, nil
}

// ListTopics returns all topics, newest first, with aggregate counts.
func (s *Service) ListTopics(ctx context.Context) ([]storage.TopicWithCounts, error) {
	topics, err := s.q.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

func (s *Service) GetTopic(ctx context.Context, id int64) (TopicDetail, error) {
	topic, err := s.q.GetTopic(ctx, id)
	if err != nil {
		return TopicDetail{}, storeError(fmt.Sprintf("topic %d", id), err)
	}

	subscribers, err := s.q.ListTopicSubscribers(ctx, id)
	if err != nil {
		return TopicDetail{}, fmt.Errorf("list topic subscribers: %w", err)
	}
	content, err := s.q.ListContentByTopic(ctx, id)
	if err != nil {
		return TopicDetail{}, fmt.Errorf("list topic content: %w", err)
	}

	return TopicDetail{Topic: topic, Subscribers: subscribers, Content: content}, nil
}

func (s *Service) UpdateTopic(ctx context.Context, id int64, in UpdateTopicInput) (storage.Topic, error) {
	topic, err := s.q.GetTopic(ctx, id)
	if err != nil {
		return storage.Topic{}, storeError(fmt.Sprintf("topic %d", id), err)
	}

	params := storage.UpdateTopicParams{
		ID:          id,
		Name:        topic.Name,
		Description: topic.Description,
	}
	if in.Name != nil {
		if params.Name, err = normalizeTopicName(*in.Name); err != nil {
			return storage.Topic{}, err
		}
	}
	if in.Description != nil {
		params.Description = optionalText(*in.Description)
	}

	updated, err := s.q.UpdateTopic(ctx, params)
	if err != nil {
		return storage.Topic{}, storeError("topic "+params.Name, err)
	}
	return updated, nil
}

// DeleteTopic removes a topic. Its subscriptions, content and email logs
// are removed by cascade.
func (s *Service) DeleteTopic(ctx context.Context, id int64) error {
	content, err := s.q.ListContentByTopic(ctx, id)
	if err != nil {
		return fmt.Errorf("list topic content: %w", err)
	}

	if err := s.q.DeleteTopic(ctx, id); err != nil {
		return storeError(fmt.Sprintf("topic %d", id), err)
	}

	for _, c := range content {
		s.deleteArchive(ctx, c.ID)
	}
	return nil
}

func (s *Service) ListTopicSubscribers(ctx context.Context, id int64) ([]storage.Subscriber, error) {
	if _, err := s.q.GetTopic(ctx, id); err != nil {
		return nil, storeError(fmt.Sprintf("topic %d", id), err)
	}
	subscribers, err := s.q.ListTopicSubscribers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list topic subscribers: %w", err)
	}
	return subscribers, nil
}

func (s *Service) deleteArchive(ctx context.Context, contentID int64) {
	if err := s.archive.Delete(ctx, archive.IssueKey(contentID)); err != nil {
		s.log.Warn().Err(err).Int64("content_id", contentID).Msg("failed to delete archived issue")
	}
}
