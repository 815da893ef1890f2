package storage

import "context"

func (q *Queries) CreateSubscription(ctx context.Context, subscriberID, topicID int64) (Subscription, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO subscriptions (subscriber_id, topic_id) VALUES ($1, $2)
RETURNING id, subscriber_id, topic_id, created_at`, subscriberID, topicID)

	var s Subscription
	err := row.Scan(&s.ID, &s.SubscriberID, &s.TopicID, &s.CreatedAt)
	return s, mapError(err)
}

func (q *Queries) DeleteSubscription(ctx context.Context, subscriberID, topicID int64) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = $1 AND topic_id = $2`,
		subscriberID, topicID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveSubscriptions resolves the recipients of a topic. Only
// subscribers whose is_active flag is set at call time are returned.
func (q *Queries) ListActiveSubscriptions(ctx context.Context, topicID int64) ([]Recipient, error) {
	rows, err := q.db.Query(ctx, `
SELECT sb.id, sb.email
FROM subscriptions s
JOIN subscribers sb ON sb.id = s.subscriber_id
WHERE s.topic_id = $1 AND sb.is_active
ORDER BY sb.id`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.SubscriberID, &r.Email); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
