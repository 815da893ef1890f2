package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const contentColumns = `id, topic_id, title, body, scheduled_at, status, sent_at, created_at, updated_at`

type CreateContentParams struct {
	TopicID     int64
	Title       string
	Body        string
	ScheduledAt time.Time
}

// CreateContent inserts a content row in pending status.
func (q *Queries) CreateContent(ctx context.Context, arg CreateContentParams) (Content, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO content (topic_id, title, body, scheduled_at, status)
VALUES ($1, $2, $3, $4, 'pending')
RETURNING `+contentColumns,
		arg.TopicID, arg.Title, arg.Body, arg.ScheduledAt)
	return scanContent(row)
}

func (q *Queries) GetContent(ctx context.Context, id int64) (Content, error) {
	row := q.db.QueryRow(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	return scanContent(row)
}

const listContentSQL = `
SELECT c.id, c.topic_id, c.title, c.body, c.scheduled_at, c.status, c.sent_at, c.created_at, c.updated_at,
       t.name,
       (SELECT COUNT(*) FROM email_logs l WHERE l.content_id = c.id)
FROM content c
JOIN topics t ON t.id = c.topic_id
`

func (q *Queries) ListContent(ctx context.Context) ([]ContentWithCounts, error) {
	rows, err := q.db.Query(ctx, listContentSQL+`ORDER BY c.scheduled_at DESC, c.id DESC`)
	if err != nil {
		return nil, err
	}
	return collectContentWithCounts(rows)
}

func (q *Queries) ListContentByTopic(ctx context.Context, topicID int64) ([]ContentWithCounts, error) {
	rows, err := q.db.Query(ctx,
		listContentSQL+`WHERE c.topic_id = $1 ORDER BY c.scheduled_at DESC, c.id DESC`, topicID)
	if err != nil {
		return nil, err
	}
	return collectContentWithCounts(rows)
}

type UpdateContentParams struct {
	ID          int64
	TopicID     int64
	Title       string
	Body        string
	ScheduledAt time.Time
}

// UpdateContent rewrites the editable fields of a content row that has not
// been sent. A sent row is reported as ErrNotFound.
func (q *Queries) UpdateContent(ctx context.Context, arg UpdateContentParams) (Content, error) {
	row := q.db.QueryRow(ctx, `
UPDATE content
SET topic_id = $2, title = $3, body = $4, scheduled_at = $5, updated_at = NOW()
WHERE id = $1 AND status <> 'sent'
RETURNING `+contentColumns,
		arg.ID, arg.TopicID, arg.Title, arg.Body, arg.ScheduledAt)
	return scanContent(row)
}

// DeleteContent removes a content row that has not been sent.
func (q *Queries) DeleteContent(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM content WHERE id = $1 AND status <> 'sent'`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type UpdateContentStatusParams struct {
	ID     int64
	Status ContentStatus
	// SentAt is written only when valid; otherwise the column keeps its value.
	SentAt pgtype.Timestamptz
	// ExpectedStatuses restricts the update to rows currently in one of
	// these states. Empty means any state other than sent.
	ExpectedStatuses []ContentStatus
}

// UpdateContentStatus performs the single conditional status write used by
// the dispatch worker. A sent row is never modified. The returned bool
// reports whether a row was changed.
func (q *Queries) UpdateContentStatus(ctx context.Context, arg UpdateContentStatusParams) (bool, error) {
	expected := make([]string, 0, len(arg.ExpectedStatuses))
	for _, s := range arg.ExpectedStatuses {
		expected = append(expected, string(s))
	}

	tag, err := q.db.Exec(ctx, `
UPDATE content
SET status = $2, sent_at = COALESCE($3::timestamptz, sent_at), updated_at = NOW()
WHERE id = $1
  AND status <> 'sent'
  AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))`,
		arg.ID, string(arg.Status), arg.SentAt, expected)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

type ClaimContentDispatchParams struct {
	ID    int64
	Token string
	// Lease is how long a claim keeps other runs out. An older claim is
	// treated as abandoned.
	Lease time.Duration
}

// ClaimContentDispatch marks the start of a dispatch run. It reports false
// when the row is sent or another run holds a live claim.
func (q *Queries) ClaimContentDispatch(ctx context.Context, arg ClaimContentDispatchParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE content
SET dispatch_claim = $2::uuid, dispatch_started_at = NOW()
WHERE id = $1
  AND status <> 'sent'
  AND (dispatch_started_at IS NULL OR dispatch_started_at < NOW() - make_interval(secs => $3::float8))`,
		arg.ID, arg.Token, arg.Lease.Seconds())
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseContentDispatch drops the claim taken with token. A claim that has
// since been taken over by another run is left alone.
func (q *Queries) ReleaseContentDispatch(ctx context.Context, id int64, token string) error {
	_, err := q.db.Exec(ctx, `
UPDATE content
SET dispatch_claim = NULL, dispatch_started_at = NULL
WHERE id = $1 AND dispatch_claim = $2::uuid`, id, token)
	return mapError(err)
}

// ListOverduePendingContent returns pending rows whose release time is
// earlier than before, oldest first. Rows with a dispatch claim taken after
// before are still being worked on and are skipped.
func (q *Queries) ListOverduePendingContent(ctx context.Context, before time.Time, limit int32) ([]Content, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+contentColumns+`
FROM content
WHERE status = 'pending' AND scheduled_at < $1
  AND (dispatch_started_at IS NULL OR dispatch_started_at < $1)
ORDER BY scheduled_at, id
LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanContent(row interface{ Scan(...any) error }) (Content, error) {
	var (
		c      Content
		status string
	)
	err := row.Scan(&c.ID, &c.TopicID, &c.Title, &c.Body, &c.ScheduledAt,
		&status, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	c.Status = ContentStatus(status)
	return c, mapError(err)
}

func collectContentWithCounts(rows pgx.Rows) ([]ContentWithCounts, error) {
	defer rows.Close()

	var items []ContentWithCounts
	for rows.Next() {
		var (
			i      ContentWithCounts
			status string
		)
		if err := rows.Scan(
			&i.ID, &i.TopicID, &i.Title, &i.Body, &i.ScheduledAt,
			&status, &i.SentAt, &i.CreatedAt, &i.UpdatedAt,
			&i.TopicName, &i.EmailLogCount,
		); err != nil {
			return nil, err
		}
		i.Status = ContentStatus(status)
		items = append(items, i)
	}
	return items, rows.Err()
}
