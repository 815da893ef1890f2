package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const topicColumns = `id, name, description, created_at, updated_at`

type CreateTopicParams struct {
	Name        string
	Description pgtype.Text
}

func (q *Queries) CreateTopic(ctx context.Context, arg CreateTopicParams) (Topic, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO topics (name, description) VALUES ($1, $2) RETURNING `+topicColumns,
		arg.Name, arg.Description)
	return scanTopic(row)
}

func (q *Queries) GetTopic(ctx context.Context, id int64) (Topic, error) {
	row := q.db.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id)
	return scanTopic(row)
}

func (q *Queries) ListTopics(ctx context.Context) ([]TopicWithCounts, error) {
	rows, err := q.db.Query(ctx, `
SELECT t.id, t.name, t.description, t.created_at, t.updated_at,
       (SELECT COUNT(*) FROM subscriptions s WHERE s.topic_id = t.id),
       (SELECT COUNT(*) FROM content c WHERE c.topic_id = t.id)
FROM topics t
ORDER BY t.created_at DESC, t.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TopicWithCounts
	for rows.Next() {
		var i TopicWithCounts
		if err := rows.Scan(
			&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.UpdatedAt,
			&i.SubscriptionCount, &i.ContentCount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type UpdateTopicParams struct {
	ID          int64
	Name        string
	Description pgtype.Text
}

func (q *Queries) UpdateTopic(ctx context.Context, arg UpdateTopicParams) (Topic, error) {
	row := q.db.QueryRow(ctx, `
UPDATE topics SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+topicColumns,
		arg.ID, arg.Name, arg.Description)
	return scanTopic(row)
}

func (q *Queries) DeleteTopic(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) ListTopicSubscribers(ctx context.Context, topicID int64) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, `
SELECT sb.id, sb.email, sb.is_active, sb.created_at, sb.updated_at
FROM subscribers sb
JOIN subscriptions s ON s.subscriber_id = sb.id
WHERE s.topic_id = $1
ORDER BY s.created_at DESC, sb.id DESC`, topicID)
	if err != nil {
		return nil, err
	}
	return collectSubscribers(rows)
}

func scanTopic(row interface{ Scan(...any) error }) (Topic, error) {
	var t Topic
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	return t, mapError(err)
}
