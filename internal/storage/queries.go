package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries runs the hand-written statements of this package against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Querier is the full query surface, mocked in service tests.
type Querier interface {
	// topics
	CreateTopic(ctx context.Context, arg CreateTopicParams) (Topic, error)
	GetTopic(ctx context.Context, id int64) (Topic, error)
	ListTopics(ctx context.Context) ([]TopicWithCounts, error)
	UpdateTopic(ctx context.Context, arg UpdateTopicParams) (Topic, error)
	DeleteTopic(ctx context.Context, id int64) error
	ListTopicSubscribers(ctx context.Context, topicID int64) ([]Subscriber, error)

	// subscribers
	CreateSubscriber(ctx context.Context, email string) (Subscriber, error)
	GetSubscriber(ctx context.Context, id int64) (Subscriber, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	UpdateSubscriber(ctx context.Context, arg UpdateSubscriberParams) (Subscriber, error)
	DeleteSubscriber(ctx context.Context, id int64) error
	ListSubscriberTopics(ctx context.Context, subscriberID int64) ([]Topic, error)

	// subscriptions
	CreateSubscription(ctx context.Context, subscriberID, topicID int64) (Subscription, error)
	DeleteSubscription(ctx context.Context, subscriberID, topicID int64) error
	ListActiveSubscriptions(ctx context.Context, topicID int64) ([]Recipient, error)

	// content
	CreateContent(ctx context.Context, arg CreateContentParams) (Content, error)
	GetContent(ctx context.Context, id int64) (Content, error)
	ListContent(ctx context.Context) ([]ContentWithCounts, error)
	ListContentByTopic(ctx context.Context, topicID int64) ([]ContentWithCounts, error)
	UpdateContent(ctx context.Context, arg UpdateContentParams) (Content, error)
	DeleteContent(ctx context.Context, id int64) error
	UpdateContentStatus(ctx context.Context, arg UpdateContentStatusParams) (bool, error)
	ListOverduePendingContent(ctx context.Context, before time.Time, limit int32) ([]Content, error)

	// email logs
	AppendEmailLog(ctx context.Context, arg AppendEmailLogParams) (EmailLog, error)
	ListEmailLogs(ctx context.Context, arg ListEmailLogsParams) ([]EmailLogWithSubscriber, error)
	CountEmailLogsByStatus(ctx context.Context, contentID int64) (EmailLogCounts, error)

	GetStats(ctx context.Context) (Stats, error)
}

var _ Querier = (*Queries)(nil)
