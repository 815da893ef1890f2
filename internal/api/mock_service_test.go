package api

import (
	"context"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// mockService implements Service. Unset functions return zero values.
type mockService struct {
	CreateTopicFunc          func(ctx context.Context, name, description string) (storage.Topic, error)
	ListTopicsFunc           func(ctx context.Context) ([]storage.TopicWithCounts, error)
	GetTopicFunc             func(ctx context.Context, id int64) (newsletter.TopicDetail, error)
	UpdateTopicFunc          func(ctx context.Context, id int64, in newsletter.UpdateTopicInput) (storage.Topic, error)
	DeleteTopicFunc          func(ctx context.Context, id int64) error
	ListTopicSubscribersFunc func(ctx context.Context, id int64) ([]storage.Subscriber, error)
	CreateSubscriberFunc     func(ctx context.Context, email string) (storage.Subscriber, error)
	ListSubscribersFunc      func(ctx context.Context) ([]storage.Subscriber, error)
	GetSubscriberFunc        func(ctx context.Context, id int64) (newsletter.SubscriberDetail, error)
	UpdateSubscriberFunc     func(ctx context.Context, id int64, in newsletter.UpdateSubscriberInput) (storage.Subscriber, error)
	DeleteSubscriberFunc     func(ctx context.Context, id int64) error
	SubscribeFunc            func(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error)
	UnsubscribeFunc          func(ctx context.Context, subscriberID, topicID int64) error
	UnsubscribeLinkFunc      func(ctx context.Context, subscriberID, topicID int64) error
	CreateContentFunc        func(ctx context.Context, in newsletter.CreateContentInput) (storage.Content, error)
	ListContentFunc          func(ctx context.Context, topicID *int64) ([]storage.ContentWithCounts, error)
	GetContentFunc           func(ctx context.Context, id int64) (newsletter.ContentDetail, error)
	ListContentLogsFunc      func(ctx context.Context, id int64, status storage.EmailLogStatus) ([]storage.EmailLogWithSubscriber, error)
	UpdateContentFunc        func(ctx context.Context, id int64, in newsletter.UpdateContentInput) (storage.Content, error)
	DeleteContentFunc        func(ctx context.Context, id int64) error
	RetryContentFunc         func(ctx context.Context, id int64) (storage.Content, error)
	GetArchivedIssueFunc     func(ctx context.Context, id int64) ([]byte, error)
	GetStatsFunc             func(ctx context.Context) (storage.Stats, error)
}

var _ Service = (*mockService)(nil)

func (m *mockService) CreateTopic(ctx context.Context, name, description string) (storage.Topic, error) {
	if m.CreateTopicFunc != nil {
		return m.CreateTopicFunc(ctx, name, description)
	}
	return storage.Topic{}, nil
}

func (m *mockService) ListTopics(ctx context.Context) ([]storage.TopicWithCounts, error) {
	if m.ListTopicsFunc != nil {
		return m.ListTopicsFunc(ctx)
	}
	return nil, nil
}

func (m *mockService) GetTopic(ctx context.Context, id int64) (newsletter.TopicDetail, error) {
	if m.GetTopicFunc != nil {
		return m.GetTopicFunc(ctx, id)
	}
	return newsletter.TopicDetail{}, nil
}

func (m *mockService) UpdateTopic(ctx context.Context, id int64, in newsletter.UpdateTopicInput) (storage.Topic, error) {
	if m.UpdateTopicFunc != nil {
		return m.UpdateTopicFunc(ctx, id, in)
	}
	return storage.Topic{}, nil
}

func (m *mockService) DeleteTopic(ctx context.Context, id int64) error {
	if m.DeleteTopicFunc != nil {
		return m.DeleteTopicFunc(ctx, id)
	}
	return nil
}

func (m *mockService) ListTopicSubscribers(ctx context.Context, id int64) ([]storage.Subscriber, error) {
	if m.ListTopicSubscribersFunc != nil {
		return m.ListTopicSubscribersFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockService) CreateSubscriber(ctx context.Context, email string) (storage.Subscriber, error) {
	if m.CreateSubscriberFunc != nil {
		return m.CreateSubscriberFunc(ctx, email)
	}
	return storage.Subscriber{}, nil
}

func (m *mockService) ListSubscribers(ctx context.Context) ([]storage.Subscriber, error) {
	if m.ListSubscribersFunc != nil {
		return m.ListSubscribersFunc(ctx)
	}
	return nil, nil
}

func (m *mockService) GetSubscriber(ctx context.Context, id int64) (newsletter.SubscriberDetail, error) {
	if m.GetSubscriberFunc != nil {
		return m.GetSubscriberFunc(ctx, id)
	}
	return newsletter.SubscriberDetail{}, nil
}

func (m *mockService) UpdateSubscriber(ctx context.Context, id int64, in newsletter.UpdateSubscriberInput) (storage.Subscriber, error) {
	if m.UpdateSubscriberFunc != nil {
		return m.UpdateSubscriberFunc(ctx, id, in)
	}
	return storage.Subscriber{}, nil
}

func (m *mockService) DeleteSubscriber(ctx context.Context, id int64) error {
	if m.DeleteSubscriberFunc != nil {
		return m.DeleteSubscriberFunc(ctx, id)
	}
	return nil
}

func (m *mockService) Subscribe(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, subscriberID, topicID)
	}
	return storage.Subscription{}, nil
}

func (m *mockService) Unsubscribe(ctx context.Context, subscriberID, topicID int64) error {
	if m.UnsubscribeFunc != nil {
		return m.UnsubscribeFunc(ctx, subscriberID, topicID)
	}
	return nil
}

func (m *mockService) UnsubscribeLink(ctx context.Context, subscriberID, topicID int64) error {
	if m.UnsubscribeLinkFunc != nil {
		return m.UnsubscribeLinkFunc(ctx, subscriberID, topicID)
	}
	return nil
}

func (m *mockService) CreateContent(ctx context.Context, in newsletter.CreateContentInput) (storage.Content, error) {
	if m.CreateContentFunc != nil {
		return m.CreateContentFunc(ctx, in)
	}
	return storage.Content{}, nil
}

func (m *mockService) ListContent(ctx context.Context, topicID *int64) ([]storage.ContentWithCounts, error) {
	if m.ListContentFunc != nil {
		return m.ListContentFunc(ctx, topicID)
	}
	return nil, nil
}

func (m *mockService) GetContent(ctx context.Context, id int64) (newsletter.ContentDetail, error) {
	if m.GetContentFunc != nil {
		return m.GetContentFunc(ctx, id)
	}
	return newsletter.ContentDetail{}, nil
}

func (m *mockService) ListContentLogs(ctx context.Context, id int64, status storage.EmailLogStatus) ([]storage.EmailLogWithSubscriber, error) {
	if m.ListContentLogsFunc != nil {
		return m.ListContentLogsFunc(ctx, id, status)
	}
	return nil, nil
}

func (m *mockService) UpdateContent(ctx context.Context, id int64, in newsletter.UpdateContentInput) (storage.Content, error) {
	if m.UpdateContentFunc != nil {
		return m.UpdateContentFunc(ctx, id, in)
	}
	return storage.Content{}, nil
}

func (m *mockService) DeleteContent(ctx context.Context, id int64) error {
	if m.DeleteContentFunc != nil {
		return m.DeleteContentFunc(ctx, id)
	}
	return nil
}

func (m *mockService) RetryContent(ctx context.Context, id int64) (storage.Content, error) {
	if m.RetryContentFunc != nil {
		return m.RetryContentFunc(ctx, id)
	}
	return storage.Content{}, nil
}

func (m *mockService) GetArchivedIssue(ctx context.Context, id int64) ([]byte, error) {
	if m.GetArchivedIssueFunc != nil {
		return m.GetArchivedIssueFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockService) GetStats(ctx context.Context) (storage.Stats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx)
	}
	return storage.Stats{}, nil
}
