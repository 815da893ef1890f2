package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// SQSDLQ manages dead letter queue operations backed by an AWS SQS queue.
// SQS offers no lookup by ID, so List and Reprocess work on whatever batch a
// receive call returns.
type SQSDLQ struct {
	client   sqsAPI
	dlqURL   string
	name     string
	enqueuer Enqueuer
	log      zerolog.Logger
}

// NewSQSDLQ creates a new SQSDLQ targeting the given DLQ URL. The enqueuer
// is used by Reprocess to send messages back to the primary queue.
func NewSQSDLQ(client sqsAPI, dlqURL, name string, enqueuer Enqueuer, log zerolog.Logger) *SQSDLQ {
	return &SQSDLQ{
		client:   client,
		dlqURL:   dlqURL,
		name:     name,
		enqueuer: enqueuer,
		log:      log,
	}
}

// MoveToDLQ wraps the failed message in a DLQMessage envelope and sends it
// to the dead letter queue.
func (d *SQSDLQ) MoveToDLQ(ctx context.Context, msg *Message, reason string) error {
	data, err := json.Marshal(DLQMessage{
		OriginalMessage: msg,
		FailureReason:   reason,
		MovedAt:         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
		Attributes:  map[string]string{"job_id": msg.ID, "reason": truncateAttribute(reason)},
	})
	if err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	DeadLetteredTotal.WithLabelValues(d.name).Inc()

	return nil
}

// List peeks at up to limit (at most 10) dead-lettered messages without
// hiding them from other readers.
func (d *SQSDLQ) List(ctx context.Context, limit int) ([]DLQMessage, error) {
	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: receiveBatch(limit),
		WaitTimeSeconds:     0,
		VisibilityTimeout:   0,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	msgs := make([]DLQMessage, 0, len(out.Messages))
	for _, sqsMsg := range out.Messages {
		dlqMsg, ok := d.decode(sqsMsg)
		if !ok {
			continue
		}
		msgs = append(msgs, dlqMsg)
	}
	return msgs, nil
}

// Reprocess receives a batch from the DLQ and re-enqueues those whose SQS
// message ID is listed, with the retry count reset and immediate release.
// Other received messages are made visible again. It returns the number of
// messages reprocessed.
func (d *SQSDLQ) Reprocess(ctx context.Context, entryIDs []string) (int, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	wanted := make(map[string]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		wanted[id] = struct{}{}
	}

	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     0,
		VisibilityTimeout:   30,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	reprocessed := 0
	for _, sqsMsg := range out.Messages {
		dlqMsg, ok := d.decode(sqsMsg)
		if _, match := wanted[sqsMsg.MessageID]; !ok || !match {
			d.release(ctx, sqsMsg)
			continue
		}

		msg := dlqMsg.OriginalMessage
		msg.RetryCount = 0
		msg.ReleaseAt = time.Now()
		if _, err := d.enqueuer.Enqueue(ctx, msg); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue message %s: %w", msg.ID, err)
		}

		if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      d.dlqURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		}); err != nil {
			return reprocessed, fmt.Errorf("delete dlq message: %w", err)
		}

		reprocessed++
	}

	return reprocessed, nil
}

func (d *SQSDLQ) decode(sqsMsg sqsReceivedMessage) (DLQMessage, bool) {
	var dlqMsg DLQMessage
	if err := json.Unmarshal([]byte(sqsMsg.Body), &dlqMsg); err != nil || dlqMsg.OriginalMessage == nil {
		d.log.Warn().Err(err).Str("sqs_message_id", sqsMsg.MessageID).Msg("skipping malformed dlq message")
		return DLQMessage{}, false
	}
	dlqMsg.EntryID = sqsMsg.MessageID
	return dlqMsg, true
}

// release makes a received message visible again right away.
func (d *SQSDLQ) release(ctx context.Context, sqsMsg sqsReceivedMessage) {
	if err := d.client.ChangeMessageVisibility(ctx, &sqsChangeVisibilityInput{
		QueueURL:          d.dlqURL,
		ReceiptHandle:     sqsMsg.ReceiptHandle,
		VisibilityTimeout: 0,
	}); err != nil {
		d.log.Warn().Err(err).Str("sqs_message_id", sqsMsg.MessageID).Msg("failed to release dlq message")
	}
}

func receiveBatch(limit int) int32 {
	if limit <= 0 || limit > 10 {
		return 10
	}
	return int32(limit)
}

// truncateAttribute keeps a failure reason within a sensible attribute size.
func truncateAttribute(s string) string {
	limit := 256
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
