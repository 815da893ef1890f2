package newsletter

import (
	"context"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// mockQuerier implements storage.Querier. Unset functions return zero
// values.
type mockQuerier struct {
	CreateTopicFunc               func(ctx context.Context, arg storage.CreateTopicParams) (storage.Topic, error)
	GetTopicFunc                  func(ctx context.Context, id int64) (storage.Topic, error)
	ListTopicsFunc                func(ctx context.Context) ([]storage.TopicWithCounts, error)
	UpdateTopicFunc               func(ctx context.Context, arg storage.UpdateTopicParams) (storage.Topic, error)
	DeleteTopicFunc               func(ctx context.Context, id int64) error
	ListTopicSubscribersFunc      func(ctx context.Context, topicID int64) ([]storage.Subscriber, error)
	CreateSubscriberFunc          func(ctx context.Context, email string) (storage.Subscriber, error)
	GetSubscriberFunc             func(ctx context.Context, id int64) (storage.Subscriber, error)
	ListSubscribersFunc           func(ctx context.Context) ([]storage.Subscriber, error)
	UpdateSubscriberFunc          func(ctx context.Context, arg storage.UpdateSubscriberParams) (storage.Subscriber, error)
	DeleteSubscriberFunc          func(ctx context.Context, id int64) error
	ListSubscriberTopicsFunc      func(ctx context.Context, subscriberID int64) ([]storage.Topic, error)
	CreateSubscriptionFunc        func(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error)
	DeleteSubscriptionFunc        func(ctx context.Context, subscriberID, topicID int64) error
	ListActiveSubscriptionsFunc   func(ctx context.Context, topicID int64) ([]storage.Recipient, error)
	CreateContentFunc             func(ctx context.Context, arg storage.CreateContentParams) (storage.Content, error)
	GetContentFunc                func(ctx context.Context, id int64) (storage.Content, error)
	ListContentFunc               func(ctx context.Context) ([]storage.ContentWithCounts, error)
	ListContentByTopicFunc        func(ctx context.Context, topicID int64) ([]storage.ContentWithCounts, error)
	UpdateContentFunc             func(ctx context.Context, arg storage.UpdateContentParams) (storage.Content, error)
	DeleteContentFunc             func(ctx context.Context, id int64) error
	UpdateContentStatusFunc       func(ctx context.Context, arg storage.UpdateContentStatusParams) (bool, error)
	ListOverduePendingContentFunc func(ctx context.Context, before time.Time, limit int32) ([]storage.Content, error)
	AppendEmailLogFunc            func(ctx context.Context, arg storage.AppendEmailLogParams) (storage.EmailLog, error)
	ListEmailLogsFunc             func(ctx context.Context, arg storage.ListEmailLogsParams) ([]storage.EmailLogWithSubscriber, error)
	CountEmailLogsByStatusFunc    func(ctx context.Context, contentID int64) (storage.EmailLogCounts, error)
	GetStatsFunc                  func(ctx context.Context) (storage.Stats, error)
}

var _ storage.Querier = (*mockQuerier)(nil)

func (m *mockQuerier) CreateTopic(ctx context.Context, arg storage.CreateTopicParams) (storage.Topic, error) {
	if m.CreateTopicFunc != nil {
		return m.CreateTopicFunc(ctx, arg)
	}
	return storage.Topic{}, nil
}

func (m *mockQuerier) GetTopic(ctx context.Context, id int64) (storage.Topic, error) {
	if m.GetTopicFunc != nil {
		return m.GetTopicFunc(ctx, id)
	}
	return storage.Topic{}, nil
}

func (m *mockQuerier) ListTopics(ctx context.Context) ([]storage.TopicWithCounts, error) {
	if m.ListTopicsFunc != nil {
		return m.ListTopicsFunc(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateTopic(ctx context.Context, arg storage.UpdateTopicParams) (storage.Topic, error) {
	if m.UpdateTopicFunc != nil {
		return m.UpdateTopicFunc(ctx, arg)
	}
	return storage.Topic{}, nil
}

func (m *mockQuerier) DeleteTopic(ctx context.Context, id int64) error {
	if m.DeleteTopicFunc != nil {
		return m.DeleteTopicFunc(ctx, id)
	}
	return nil
}

func (m *mockQuerier) ListTopicSubscribers(ctx context.Context, topicID int64) ([]storage.Subscriber, error) {
	if m.ListTopicSubscribersFunc != nil {
		return m.ListTopicSubscribersFunc(ctx, topicID)
	}
	return nil, nil
}

func (m *mockQuerier) CreateSubscriber(ctx context.Context, email string) (storage.Subscriber, error) {
	if m.CreateSubscriberFunc != nil {
		return m.CreateSubscriberFunc(ctx, email)
	}
	return storage.Subscriber{}, nil
}

func (m *mockQuerier) GetSubscriber(ctx context.Context, id int64) (storage.Subscriber, error) {
	if m.GetSubscriberFunc != nil {
		return m.GetSubscriberFunc(ctx, id)
	}
	return storage.Subscriber{}, nil
}

func (m *mockQuerier) ListSubscribers(ctx context.Context) ([]storage.Subscriber, error) {
	if m.ListSubscribersFunc != nil {
		return m.ListSubscribersFunc(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateSubscriber(ctx context.Context, arg storage.UpdateSubscriberParams) (storage.Subscriber, error) {
	if m.UpdateSubscriberFunc != nil {
		return m.UpdateSubscriberFunc(ctx, arg)
	}
	return storage.Subscriber{}, nil
}

func (m *mockQuerier) DeleteSubscriber(ctx context.Context, id int64) error {
	if m.DeleteSubscriberFunc != nil {
		return m.DeleteSubscriberFunc(ctx, id)
	}
	return nil
}

func (m *mockQuerier) ListSubscriberTopics(ctx context.Context, subscriberID int64) ([]storage.Topic, error) {
	if m.ListSubscriberTopicsFunc != nil {
		return m.ListSubscriberTopicsFunc(ctx, subscriberID)
	}
	return nil, nil
}

func (m *mockQuerier) CreateSubscription(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error) {
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, subscriberID, topicID)
	}
	return storage.Subscription{}, nil
}

func (m *mockQuerier) DeleteSubscription(ctx context.Context, subscriberID, topicID int64) error {
	if m.DeleteSubscriptionFunc != nil {
		return m.DeleteSubscriptionFunc(ctx, subscriberID, topicID)
	}
	return nil
}

func (m *mockQuerier) ListActiveSubscriptions(ctx context.Context, topicID int64) ([]storage.Recipient, error) {
	if m.ListActiveSubscriptionsFunc != nil {
		return m.ListActiveSubscriptionsFunc(ctx, topicID)
	}
	return nil, nil
}

func (m *mockQuerier) CreateContent(ctx context.Context, arg storage.CreateContentParams) (storage.Content, error) {
	if m.CreateContentFunc != nil {
		return m.CreateContentFunc(ctx, arg)
	}
	return storage.Content{}, nil
}

func (m *mockQuerier) GetContent(ctx context.Context, id int64) (storage.Content, error) {
	if m.GetContentFunc != nil {
		return m.GetContentFunc(ctx, id)
	}
	return storage.Content{}, nil
}

func (m *mockQuerier) ListContent(ctx context.Context) ([]storage.ContentWithCounts, error) {
	if m.ListContentFunc != nil {
		return m.ListContentFunc(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) ListContentByTopic(ctx context.Context, topicID int64) ([]storage.ContentWithCounts, error) {
	if m.ListContentByTopicFunc != nil {
		return m.ListContentByTopicFunc(ctx, topicID)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateContent(ctx context.Context, arg storage.UpdateContentParams) (storage.Content, error) {
	if m.UpdateContentFunc != nil {
		return m.UpdateContentFunc(ctx, arg)
	}
	return storage.Content{}, nil
}

func (m *mockQuerier) DeleteContent(ctx context.Context, id int64) error {
	if m.DeleteContentFunc != nil {
		return m.DeleteContentFunc(ctx, id)
	}
	return nil
}

func (m *mockQuerier) UpdateContentStatus(ctx context.Context, arg storage.UpdateContentStatusParams) (bool, error) {
	if m.UpdateContentStatusFunc != nil {
		return m.UpdateContentStatusFunc(ctx, arg)
	}
	return false, nil
}

func (m *mockQuerier) ListOverduePendingContent(ctx context.Context, before time.Time, limit int32) ([]storage.Content, error) {
	if m.ListOverduePendingContentFunc != nil {
		return m.ListOverduePendingContentFunc(ctx, before, limit)
	}
	return nil, nil
}

func (m *mockQuerier) AppendEmailLog(ctx context.Context, arg storage.AppendEmailLogParams) (storage.EmailLog, error) {
	if m.AppendEmailLogFunc != nil {
		return m.AppendEmailLogFunc(ctx, arg)
	}
	return storage.EmailLog{}, nil
}

func (m *mockQuerier) ListEmailLogs(ctx context.Context, arg storage.ListEmailLogsParams) ([]storage.EmailLogWithSubscriber, error) {
	if m.ListEmailLogsFunc != nil {
		return m.ListEmailLogsFunc(ctx, arg)
	}
	return nil, nil
}

func (m *mockQuerier) CountEmailLogsByStatus(ctx context.Context, contentID int64) (storage.EmailLogCounts, error) {
	if m.CountEmailLogsByStatusFunc != nil {
		return m.CountEmailLogsByStatusFunc(ctx, contentID)
	}
	return storage.EmailLogCounts{}, nil
}

func (m *mockQuerier) GetStats(ctx context.Context) (storage.Stats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx)
	}
	return storage.Stats{}, nil
}
