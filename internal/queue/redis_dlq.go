package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDLQ manages dead letter queue operations backed by a Redis stream.
type RedisDLQ struct {
	client   *redis.Client
	name     string
	enqueuer Enqueuer
}

// NewRedisDLQ creates a new RedisDLQ for the named queue. Reprocessed jobs
// are handed back to enqueuer.
func NewRedisDLQ(client *redis.Client, name string, enqueuer Enqueuer) *RedisDLQ {
	return &RedisDLQ{client: client, name: name, enqueuer: enqueuer}
}

// MoveToDLQ appends a failed message to the dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, msg *Message, reason string) error {
	dlqMsg := DLQMessage{
		OriginalMessage: msg,
		FailureReason:   reason,
		MovedAt:         time.Now(),
	}

	data, err := json.Marshal(dlqMsg)
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamKey(d.name),
		Values: map[string]interface{}{
			"id":   msg.ID,
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", dlqStreamKey(d.name), err)
	}

	DeadLetteredTotal.WithLabelValues(d.name).Inc()

	return nil
}

// List returns up to limit dead-lettered messages, newest first.
func (d *RedisDLQ) List(ctx context.Context, limit int) ([]DLQMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := d.client.XRevRangeN(ctx, dlqStreamKey(d.name), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange dlq stream %s: %w", dlqStreamKey(d.name), err)
	}

	out := make([]DLQMessage, 0, len(entries))
	for _, entry := range entries {
		dlqMsg, ok := decodeDLQEntry(entry)
		if !ok {
			continue
		}
		out = append(out, dlqMsg)
	}
	return out, nil
}

// Reprocess removes the given entries from the DLQ, resets their retry count,
// and re-enqueues them for immediate release. It returns the number of
// messages reprocessed. Unknown entry IDs are skipped.
func (d *RedisDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	reprocessed := 0

	for _, entryID := range entryIDs {
		entries, err := d.client.XRange(ctx, dlqStreamKey(d.name), entryID, entryID).Result()
		if err != nil {
			return reprocessed, fmt.Errorf("xrange dlq message %s: %w", entryID, err)
		}
		if len(entries) == 0 {
			continue
		}

		dlqMsg, ok := decodeDLQEntry(entries[0])
		if !ok {
			continue
		}

		msg := dlqMsg.OriginalMessage
		msg.RetryCount = 0
		msg.ReleaseAt = time.Now()
		if _, err := d.enqueuer.Enqueue(ctx, msg); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue message %s: %w", msg.ID, err)
		}

		if err := d.client.XDel(ctx, dlqStreamKey(d.name), entryID).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq message %s: %w", entryID, err)
		}

		reprocessed++
	}

	return reprocessed, nil
}

func decodeDLQEntry(entry redis.XMessage) (DLQMessage, bool) {
	data, ok := entry.Values["data"].(string)
	if !ok {
		return DLQMessage{}, false
	}
	var dlqMsg DLQMessage
	if err := json.Unmarshal([]byte(data), &dlqMsg); err != nil || dlqMsg.OriginalMessage == nil {
		return DLQMessage{}, false
	}
	dlqMsg.EntryID = entry.ID
	return dlqMsg, true
}
