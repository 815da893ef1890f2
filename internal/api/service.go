package api

import (
	"context"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// Service is the business surface the handlers call. *newsletter.Service
// implements it.
type Service interface {
	CreateTopic(ctx context.Context, name, description string) (storage.Topic, error)
	ListTopics(ctx context.Context) ([]storage.TopicWithCounts, error)
	GetTopic(ctx context.Context, id int64) (newsletter.TopicDetail, error)
	UpdateTopic(ctx context.Context, id int64, in newsletter.UpdateTopicInput) (storage.Topic, error)
	DeleteTopic(ctx context.Context, id int64) error
	ListTopicSubscribers(ctx context.Context, id int64) ([]storage.Subscriber, error)

	CreateSubscriber(ctx context.Context, email string) (storage.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]storage.Subscriber, error)
	GetSubscriber(ctx context.Context, id int64) (newsletter.SubscriberDetail, error)
	UpdateSubscriber(ctx context.Context, id int64, in newsletter.UpdateSubscriberInput) (storage.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id int64) error

	Subscribe(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error)
	Unsubscribe(ctx context.Context, subscriberID, topicID int64) error
	UnsubscribeLink(ctx context.Context, subscriberID, topicID int64) error

	CreateContent(ctx context.Context, in newsletter.CreateContentInput) (storage.Content, error)
	ListContent(ctx context.Context, topicID *int64) ([]storage.ContentWithCounts, error)
	GetContent(ctx context.Context, id int64) (newsletter.ContentDetail, error)
	ListContentLogs(ctx context.Context, id int64, status storage.EmailLogStatus) ([]storage.EmailLogWithSubscriber, error)
	UpdateContent(ctx context.Context, id int64, in newsletter.UpdateContentInput) (storage.Content, error)
	DeleteContent(ctx context.Context, id int64) error
	RetryContent(ctx context.Context, id int64) (storage.Content, error)
	GetArchivedIssue(ctx context.Context, id int64) ([]byte, error)

	GetStats(ctx context.Context) (storage.Stats, error)
}

var _ Service = (*newsletter.Service)(nil)
