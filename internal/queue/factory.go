package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewQueue creates an Enqueuer, Dequeuer, and DeadLetterQueue based on the
// given configuration. The handler defines the message processing logic used
// by the Dequeuer; when it is nil no Dequeuer is built, which is what
// producer-only processes want. groupName names the consumer group.
//
// The returned close function releases backend connections.
func NewQueue(
	ctx context.Context,
	cfg Config,
	handler MessageHandler,
	log zerolog.Logger,
	groupName string,
) (Enqueuer, Dequeuer, DeadLetterQueue, func() error, error) {
	cfg = cfg.withDefaults()
	retry := NewRetryPolicy(cfg.MaxRetries)

	switch cfg.Type {
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		enqueuer := NewRedisEnqueuer(client, cfg.Name)
		dlq := NewRedisDLQ(client, cfg.Name, enqueuer)

		var dequeuer Dequeuer
		if handler != nil {
			dequeuer = NewRedisDequeuer(client, enqueuer, dlq, handler, retry, cfg, log, groupName)
		}

		return enqueuer, dequeuer, dlq, client.Close, nil

	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, nil, nil, nil, errors.New("queue.sqs_queue_url is required for sqs")
		}
		sqsClient, err := newAWSSQSClient(ctx, cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		enqueuer := NewSQSEnqueuer(sqsClient, cfg.SQSQueueURL, log)
		dlq := NewSQSDLQ(sqsClient, cfg.SQSDLQueueURL, cfg.Name, enqueuer, log)

		var dequeuer Dequeuer
		if handler != nil {
			dequeuer = NewSQSDequeuer(sqsClient, cfg.SQSQueueURL, handler, dlq, retry, enqueuer, cfg, log)
		}

		return enqueuer, dequeuer, dlq, func() error { return nil }, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
