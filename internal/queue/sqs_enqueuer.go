package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// maxSQSDelay is the longest per-message delay SQS accepts.
const maxSQSDelay = 900 * time.Second

// SQSEnqueuer publishes messages to an AWS SQS queue. SQS caps message delay
// at 15 minutes, so jobs released further out travel in hops: each hop is
// delivered, found not yet due, and re-sent with the next delay.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
	log      zerolog.Logger
}

// NewSQSEnqueuer creates a new SQSEnqueuer targeting the given queue URL.
func NewSQSEnqueuer(client sqsAPI, queueURL string, log zerolog.Logger) *SQSEnqueuer {
	return &SQSEnqueuer{
		client:   client,
		queueURL: queueURL,
		log:      log,
	}
}

// Enqueue sends the message with the delay remaining until its release time,
// capped to the SQS maximum. It returns the job ID.
func (e *SQSEnqueuer) Enqueue(ctx context.Context, msg *Message) (string, error) {
	if _, err := e.EnqueueWithDelay(ctx, msg, releaseDelay(msg.ReleaseAt, time.Now())); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EnqueueWithDelay serializes the message and sends it with a delay.
// The delay is capped at 900 seconds (SQS maximum). It returns the SQS
// message ID.
func (e *SQSEnqueuer) EnqueueWithDelay(ctx context.Context, msg *Message, delaySeconds int32) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	if delaySeconds > int32(maxSQSDelay.Seconds()) {
		delaySeconds = int32(maxSQSDelay.Seconds())
	}
	if delaySeconds < 0 {
		delaySeconds = 0
	}

	out, err := e.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     e.queueURL,
		MessageBody:  string(data),
		DelaySeconds: delaySeconds,
		Attributes:   jobAttributes(msg),
	})
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}

	JobsEnqueuedTotal.Inc()

	return out.MessageID, nil
}

// releaseDelay returns whole seconds from now until releaseAt, rounded up and
// clamped to [0, maxSQSDelay].
func releaseDelay(releaseAt, now time.Time) int32 {
	d := releaseAt.Sub(now)
	if d <= 0 {
		return 0
	}
	if d > maxSQSDelay {
		d = maxSQSDelay
	}
	return int32(math.Ceil(d.Seconds()))
}

// Ping checks that the queue is reachable.
func (e *SQSEnqueuer) Ping(ctx context.Context) error {
	_, err := e.client.ApproximateDepth(ctx, e.queueURL)
	return err
}
