package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type AppendEmailLogParams struct {
	ContentID         int64
	SubscriberID      int64
	Status            EmailLogStatus
	ErrorMessage      pgtype.Text
	ProviderMessageID pgtype.Text
}

// AppendEmailLog records one delivery attempt. Rows are never updated.
func (q *Queries) AppendEmailLog(ctx context.Context, arg AppendEmailLogParams) (EmailLog, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO email_logs (content_id, subscriber_id, status, error_message, provider_message_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, content_id, subscriber_id, status, error_message, provider_message_id, sent_at`,
		arg.ContentID, arg.SubscriberID, string(arg.Status), arg.ErrorMessage, arg.ProviderMessageID)

	var (
		l      EmailLog
		status string
	)
	err := row.Scan(&l.ID, &l.ContentID, &l.SubscriberID, &status,
		&l.ErrorMessage, &l.ProviderMessageID, &l.SentAt)
	l.Status = EmailLogStatus(status)
	return l, mapError(err)
}

type ListEmailLogsParams struct {
	ContentID int64
	// Status filters by outcome when non-empty.
	Status EmailLogStatus
	// Limit caps the result when positive.
	Limit int32
}

// ListEmailLogs returns the attempts for a content item, newest first.
func (q *Queries) ListEmailLogs(ctx context.Context, arg ListEmailLogsParams) ([]EmailLogWithSubscriber, error) {
	rows, err := q.db.Query(ctx, `
SELECT l.id, l.content_id, l.subscriber_id, l.status, l.error_message, l.provider_message_id, l.sent_at,
       sb.email
FROM email_logs l
JOIN subscribers sb ON sb.id = l.subscriber_id
WHERE l.content_id = $1 AND ($2::text = '' OR l.status = $2::text)
ORDER BY l.sent_at DESC, l.id DESC
LIMIT NULLIF($3::int, 0)`,
		arg.ContentID, string(arg.Status), arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []EmailLogWithSubscriber
	for rows.Next() {
		var (
			i      EmailLogWithSubscriber
			status string
		)
		if err := rows.Scan(&i.ID, &i.ContentID, &i.SubscriberID, &status,
			&i.ErrorMessage, &i.ProviderMessageID, &i.SentAt, &i.SubscriberEmail); err != nil {
			return nil, err
		}
		i.Status = EmailLogStatus(status)
		items = append(items, i)
	}
	return items, rows.Err()
}

// CountEmailLogsByStatus derives the delivery counts of a content item.
func (q *Queries) CountEmailLogsByStatus(ctx context.Context, contentID int64) (EmailLogCounts, error) {
	row := q.db.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE status = 'sent'),
       COUNT(*) FILTER (WHERE status = 'failed')
FROM email_logs
WHERE content_id = $1`, contentID)

	var c EmailLogCounts
	err := row.Scan(&c.Sent, &c.Failed)
	return c, mapError(err)
}
