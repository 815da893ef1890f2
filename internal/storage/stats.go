package storage

import "context"

func (q *Queries) GetStats(ctx context.Context) (Stats, error) {
	row := q.db.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM subscribers),
  (SELECT COUNT(*) FROM subscribers WHERE is_active),
  (SELECT COUNT(*) FROM topics),
  (SELECT COUNT(*) FROM subscriptions),
  (SELECT COUNT(*) FROM content),
  (SELECT COUNT(*) FROM content WHERE status = 'pending'),
  (SELECT COUNT(*) FROM content WHERE status = 'sent'),
  (SELECT COUNT(*) FROM content WHERE status = 'failed'),
  (SELECT COUNT(*) FROM email_logs),
  (SELECT COUNT(*) FROM email_logs WHERE status = 'sent'),
  (SELECT COUNT(*) FROM email_logs WHERE status = 'failed')`)

	var s Stats
	err := row.Scan(
		&s.SubscribersTotal, &s.SubscribersActive,
		&s.TopicsTotal, &s.SubscriptionsTotal,
		&s.ContentTotal, &s.ContentPending, &s.ContentSent, &s.ContentFailed,
		&s.EmailsTotal, &s.EmailsSent, &s.EmailsFailed,
	)
	return s, mapError(err)
}
