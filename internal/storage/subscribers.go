package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const subscriberColumns = `id, email, is_active, created_at, updated_at`

func (q *Queries) CreateSubscriber(ctx context.Context, email string) (Subscriber, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO subscribers (email) VALUES ($1) RETURNING `+subscriberColumns, email)
	return scanSubscriber(row)
}

func (q *Queries) GetSubscriber(ctx context.Context, id int64) (Subscriber, error) {
	row := q.db.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id)
	return scanSubscriber(row)
}

func (q *Queries) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectSubscribers(rows)
}

type UpdateSubscriberParams struct {
	ID       int64
	Email    string
	IsActive bool
}

func (q *Queries) UpdateSubscriber(ctx context.Context, arg UpdateSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRow(ctx, `
UPDATE subscribers SET email = $2, is_active = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+subscriberColumns,
		arg.ID, arg.Email, arg.IsActive)
	return scanSubscriber(row)
}

func (q *Queries) DeleteSubscriber(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) ListSubscriberTopics(ctx context.Context, subscriberID int64) ([]Topic, error) {
	rows, err := q.db.Query(ctx, `
SELECT t.id, t.name, t.description, t.created_at, t.updated_at
FROM topics t
JOIN subscriptions s ON s.topic_id = t.id
WHERE s.subscriber_id = $1
ORDER BY t.name`, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanSubscriber(row interface{ Scan(...any) error }) (Subscriber, error) {
	var s Subscriber
	err := row.Scan(&s.ID, &s.Email, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, mapError(err)
}

func collectSubscribers(rows pgx.Rows) ([]Subscriber, error) {
	defer rows.Close()

	var items []Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
