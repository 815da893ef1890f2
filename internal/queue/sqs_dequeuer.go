package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQSDequeuer manages a pool of worker goroutines that consume and process
// messages from an AWS SQS queue. Messages received before their release
// time are forwarded as another delayed hop.
type SQSDequeuer struct {
	client          sqsAPI
	queueURL        string
	name            string
	handler         MessageHandler
	dlq             DeadLetterQueue
	retry           *RetryPolicy
	enqueuer        *SQSEnqueuer
	log             zerolog.Logger
	workerCount     int
	waitTime        int32
	visTimeout      int32
	processTimeout  time.Duration
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewSQSDequeuer creates an SQSDequeuer configured from the given Config.
func NewSQSDequeuer(
	client sqsAPI,
	queueURL string,
	handler MessageHandler,
	dlq DeadLetterQueue,
	retry *RetryPolicy,
	enqueuer *SQSEnqueuer,
	cfg Config,
	log zerolog.Logger,
) *SQSDequeuer {
	cfg = cfg.withDefaults()
	waitTime := cfg.SQSWaitTime
	if waitTime == 0 {
		waitTime = 20
	}
	// The message must stay invisible for as long as a handler may run.
	visTimeout := cfg.SQSVisTimeout
	if visTimeout == 0 {
		visTimeout = int32(cfg.ProcessTimeout.Seconds()) + 30
	}

	return &SQSDequeuer{
		client:          client,
		queueURL:        queueURL,
		name:            cfg.Name,
		handler:         handler,
		dlq:             dlq,
		retry:           retry,
		enqueuer:        enqueuer,
		log:             log,
		workerCount:     cfg.WorkerCount,
		waitTime:        waitTime,
		visTimeout:      visTimeout,
		processTimeout:  cfg.ProcessTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start launches workerCount goroutines that long-poll the SQS queue.
func (d *SQSDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.runDepthPoller(ctx)

	for i := range d.workerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.workerCount).
		Str("queue_url", d.queueURL).
		Msg("sqs dequeuer started")

	return nil
}

// Stop cancels the context and waits for workers to finish within the
// shutdown timeout.
func (d *SQSDequeuer) Stop(_ context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("sqs dequeuer stopped gracefully")
		return nil
	case <-time.After(d.shutdownTimeout):
		d.log.Warn().Msg("sqs dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.shutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine. It long-polls
// SQS and processes received messages one at a time.
func (d *SQSDequeuer) runWorker(ctx context.Context, workerName string) {
	defer d.wg.Done()

	d.log.Debug().Str("worker", workerName).Msg("sqs worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Str("worker", workerName).Msg("sqs worker stopping")
			return
		default:
		}

		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     d.waitTime,
			VisibilityTimeout:   d.visTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Str("worker", workerName).Msg("sqs receive error")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, sqsMsg := range out.Messages {
			d.processMessage(ctx, sqsMsg)
		}
	}
}

// runDepthPoller publishes approximate queue counts to the depth gauges.
func (d *SQSDequeuer) runDepthPoller(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		depth, err := d.client.ApproximateDepth(ctx, d.queueURL)
		if err != nil {
			if ctx.Err() == nil {
				d.log.Warn().Err(err).Msg("sqs depth poll failed")
			}
			continue
		}
		QueueDepth.WithLabelValues(d.name, "delayed").Set(float64(depth.Delayed))
		QueueDepth.WithLabelValues(d.name, "ready").Set(float64(depth.Visible + depth.InFlight))
	}
}

// processMessage deserializes an SQS message body and either forwards it
// (not yet due), or invokes the handler and then deletes, retries, discards
// or dead-letters it. When a follow-up send fails the original is kept and
// reappears after its visibility timeout.
func (d *SQSDequeuer) processMessage(ctx context.Context, sqsMsg sqsReceivedMessage) {
	// In-flight jobs finish even when shutdown cancels ctx.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	var msg Message
	if err := json.Unmarshal([]byte(sqsMsg.Body), &msg); err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to unmarshal sqs message")
		d.delete(ctx, sqsMsg)
		return
	}

	if !msg.Due(start) {
		if _, err := d.enqueuer.EnqueueWithDelay(ctx, &msg, releaseDelay(msg.ReleaseAt, start)); err != nil {
			d.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to forward delayed message")
			return
		}
		d.delete(ctx, sqsMsg)
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, d.processTimeout)
	err := d.handler.HandleMessage(processCtx, &msg)
	cancel()

	o := d.retry.settle(&msg, err, time.Now())
	log := d.log.With().Str("message_id", msg.ID).Int("retry_count", msg.RetryCount).Logger()
	switch o {
	case outcomeDiscarded:
		log.Warn().Err(err).Msg("job discarded")
	case outcomeRetry:
		log.Error().Err(err).Time("release_at", msg.ReleaseAt).Msg("job failed, re-enqueueing with delay")
		if _, enqErr := d.enqueuer.Enqueue(ctx, &msg); enqErr != nil {
			log.Error().Err(enqErr).Msg("failed to re-enqueue for retry")
			return
		}
	case outcomeDead:
		log.Error().Err(err).Msg("job failed, retries exhausted")
		if dlqErr := d.dlq.MoveToDLQ(ctx, &msg, err.Error()); dlqErr != nil {
			log.Error().Err(dlqErr).Msg("failed to move to DLQ")
			return
		}
	}
	observeHandled(start, o)

	d.delete(ctx, sqsMsg)
}

func (d *SQSDequeuer) delete(ctx context.Context, sqsMsg sqsReceivedMessage) {
	if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      d.queueURL,
		ReceiptHandle: sqsMsg.ReceiptHandle,
	}); err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to delete sqs message")
	}
}
