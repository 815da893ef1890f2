package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const promoteBatch = 100

// RedisDequeuer manages a pool of worker goroutines that consume due jobs
// from a Redis stream using a consumer group. It also runs the promoter that
// moves due jobs out of the delayed set and the reclaimer that takes over
// jobs left in flight by consumers that died.
type RedisDequeuer struct {
	client    *redis.Client
	enqueuer  *RedisEnqueuer
	dlq       DeadLetterQueue
	handler   MessageHandler
	retry     *RetryPolicy
	config    Config
	log       zerolog.Logger
	groupName string
	instance  string
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewRedisDequeuer creates a RedisDequeuer for the queue named in cfg.
func NewRedisDequeuer(
	client *redis.Client,
	enqueuer *RedisEnqueuer,
	dlq DeadLetterQueue,
	handler MessageHandler,
	retry *RetryPolicy,
	cfg Config,
	log zerolog.Logger,
	groupName string,
) *RedisDequeuer {
	return &RedisDequeuer{
		client:    client,
		enqueuer:  enqueuer,
		dlq:       dlq,
		handler:   handler,
		retry:     retry,
		config:    cfg.withDefaults(),
		log:       log,
		groupName: groupName,
		instance:  uuid.NewString()[:8],
	}
}

// Start creates the consumer group (if it does not already exist) and
// launches the promoter, the reclaimer and the configured number of workers.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	if err := d.createConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(2)
	go d.runPromoter(ctx)
	go d.runReclaimer(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, d.instance+"-worker-"+strconv.Itoa(i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("queue", d.config.Name).
		Str("group", d.groupName).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for in-flight jobs to finish.
func (d *RedisDequeuer) Stop(ctx context.Context) error {
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
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		d.log.Warn().Msg("redis dequeuer shutdown cancelled")
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// createConsumerGroup creates the consumer group on the queue stream.
// If the group already exists, the error is ignored.
func (d *RedisDequeuer) createConsumerGroup(ctx context.Context) error {
	stream := streamKey(d.config.Name)
	err := d.client.XGroupCreateMkStream(ctx, stream, d.groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", d.groupName, stream, err)
	}
	return nil
}

// Promote moves every job whose release time has passed into the stream.
func (d *RedisDequeuer) Promote(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := promoteScript.Run(ctx, d.client,
			[]string{delayedKey(d.config.Name), jobsKey(d.config.Name), streamKey(d.config.Name)},
			time.Now().UnixMilli(), promoteBatch,
		).Int()
		if err != nil {
			return total, fmt.Errorf("promote due jobs: %w", err)
		}
		total += n
		if n < promoteBatch {
			return total, nil
		}
	}
}

func (d *RedisDequeuer) runPromoter(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := d.Promote(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.log.Error().Err(err).Msg("promoter error")
			}
			continue
		}
		if n > 0 {
			d.log.Debug().Int("count", n).Msg("promoted due jobs")
		}
		d.refreshDepth(ctx)
	}
}

// refreshDepth updates the depth gauges. Failures only leave stale values.
func (d *RedisDequeuer) refreshDepth(ctx context.Context) {
	pipe := d.client.Pipeline()
	delayed := pipe.ZCard(ctx, delayedKey(d.config.Name))
	ready := pipe.XLen(ctx, streamKey(d.config.Name))
	dead := pipe.XLen(ctx, dlqStreamKey(d.config.Name))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return
	}
	QueueDepth.WithLabelValues(d.config.Name, "delayed").Set(float64(delayed.Val()))
	QueueDepth.WithLabelValues(d.config.Name, "ready").Set(float64(ready.Val()))
	QueueDepth.WithLabelValues(d.config.Name, "dlq").Set(float64(dead.Val()))
}

func (d *RedisDequeuer) runReclaimer(ctx context.Context) {
	defer d.wg.Done()

	consumer := d.instance + "-reclaim"
	ticker := time.NewTicker(d.config.ClaimIdle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.reclaim(ctx, consumer); err != nil && ctx.Err() == nil {
			d.log.Error().Err(err).Msg("reclaim error")
		}
	}
}

// reclaim takes ownership of entries idle longer than ClaimIdle and
// processes them as if they had just been delivered.
func (d *RedisDequeuer) reclaim(ctx context.Context, consumer string) error {
	start := "0-0"
	for {
		msgs, next, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey(d.config.Name),
			Group:    d.groupName,
			MinIdle:  d.config.ClaimIdle,
			Start:    start,
			Count:    10,
			Consumer: consumer,
		}).Result()
		if err != nil {
			return fmt.Errorf("xautoclaim: %w", err)
		}

		for _, xMsg := range msgs {
			JobsReclaimedTotal.Inc()
			d.log.Warn().Str("entry_id", xMsg.ID).Msg("reclaimed stale job")
			d.processMessage(ctx, xMsg)
		}

		if next == "0-0" || next == "" || ctx.Err() != nil {
			return nil
		}
		start = next
	}
}

// runWorker is the main loop for a single worker goroutine.
func (d *RedisDequeuer) runWorker(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	d.log.Debug().Str("consumer", consumerName).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Str("consumer", consumerName).Msg("worker stopping")
			return
		default:
		}

		xStreams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.groupName,
			Consumer: consumerName,
			Streams:  []string{streamKey(d.config.Name), ">"},
			Count:    1,
			Block:    d.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, stream := range xStreams {
			for _, xMsg := range stream.Messages {
				d.processMessage(ctx, xMsg)
			}
		}
	}
}

// processMessage decodes a stream entry, invokes the handler, and then
// acknowledges, retries, discards or dead-letters the job. The entry stays
// pending when the follow-up write fails so the reclaimer can retry it.
func (d *RedisDequeuer) processMessage(ctx context.Context, xMsg redis.XMessage) {
	// In-flight jobs finish even when shutdown cancels ctx.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	data, ok := xMsg.Values["data"].(string)
	if !ok {
		d.log.Error().Str("entry_id", xMsg.ID).Msg("invalid message data type")
		d.acknowledge(ctx, xMsg.ID)
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		d.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("failed to unmarshal message")
		d.acknowledge(ctx, xMsg.ID)
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.ProcessTimeout)
	err := d.handler.HandleMessage(processCtx, &msg)
	cancel()

	o := d.retry.settle(&msg, err, time.Now())
	log := d.log.With().Str("message_id", msg.ID).Int("retry_count", msg.RetryCount).Logger()
	switch o {
	case outcomeDiscarded:
		log.Warn().Err(err).Msg("job discarded")
	case outcomeRetry:
		log.Error().Err(err).Time("release_at", msg.ReleaseAt).Msg("job failed, scheduling retry")
		// A newer schedule for the same content wins over the retry.
		if schedErr := d.enqueuer.schedule(ctx, &msg, true); schedErr != nil {
			log.Error().Err(schedErr).Msg("failed to schedule retry")
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

	d.acknowledge(ctx, xMsg.ID)
}

// acknowledge removes the entry from the pending list and the stream.
func (d *RedisDequeuer) acknowledge(ctx context.Context, entryID string) {
	stream := streamKey(d.config.Name)
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, d.groupName, entryID)
		pipe.XDel(ctx, stream, entryID)
		return nil
	})
	if err != nil {
		d.log.Error().Err(err).Str("entry_id", entryID).Msg("failed to acknowledge message")
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
