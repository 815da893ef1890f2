package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ContentStatus is the lifecycle state of a content item.
type ContentStatus string

const (
	ContentStatusPending ContentStatus = "pending"
	ContentStatusSent    ContentStatus = "sent"
	ContentStatusFailed  ContentStatus = "failed"
)

// EmailLogStatus is the outcome of a single delivery attempt.
type EmailLogStatus string

const (
	EmailLogStatusSent   EmailLogStatus = "sent"
	EmailLogStatusFailed EmailLogStatus = "failed"
)

type Topic struct {
	ID          int64
	Name        string
	Description pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TopicWithCounts is a topic row plus aggregate counts for listings.
type TopicWithCounts struct {
	Topic
	SubscriptionCount int64
	ContentCount      int64
}

type Subscriber struct {
	ID        int64
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Subscription struct {
	ID           int64
	SubscriberID int64
	TopicID      int64
	CreatedAt    time.Time
}

type Content struct {
	ID          int64
	TopicID     int64
	Title       string
	Body        string
	ScheduledAt time.Time
	Status      ContentStatus
	SentAt      pgtype.Timestamptz
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentWithCounts joins the topic name and the number of EmailLog rows.
type ContentWithCounts struct {
	Content
	TopicName     string
	EmailLogCount int64
}

// Recipient is an active subscriber resolved for a topic at dispatch time.
type Recipient struct {
	SubscriberID int64
	Email        string
}

type EmailLog struct {
	ID                int64
	ContentID         int64
	SubscriberID      int64
	Status            EmailLogStatus
	ErrorMessage      pgtype.Text
	ProviderMessageID pgtype.Text
	SentAt            time.Time
}

type EmailLogWithSubscriber struct {
	EmailLog
	SubscriberEmail string
}

// EmailLogCounts holds per-status EmailLog row counts for one content item.
type EmailLogCounts struct {
	Sent   int64
	Failed int64
}

// Total returns the number of recorded attempts.
func (c EmailLogCounts) Total() int64 {
	return c.Sent + c.Failed
}

// Stats aggregates dashboard counters, all derived by COUNT queries.
type Stats struct {
	SubscribersTotal   int64
	SubscribersActive  int64
	TopicsTotal        int64
	SubscriptionsTotal int64
	ContentTotal       int64
	ContentPending     int64
	ContentSent        int64
	ContentFailed      int64
	EmailsTotal        int64
	EmailsSent         int64
	EmailsFailed       int64
}
