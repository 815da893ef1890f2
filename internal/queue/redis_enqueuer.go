package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisEnqueuer records jobs in the delayed set of a Redis queue. Jobs become
// visible to consumers once the promoter moves them to the stream.
type RedisEnqueuer struct {
	client *redis.Client
	name   string
}

// NewRedisEnqueuer creates a new RedisEnqueuer for the named queue.
func NewRedisEnqueuer(client *redis.Client, name string) *RedisEnqueuer {
	return &RedisEnqueuer{client: client, name: name}
}

// Enqueue stores the envelope and scores it by its release time. A job with
// the same ID that is still delayed is replaced. It returns the job ID.
func (e *RedisEnqueuer) Enqueue(ctx context.Context, msg *Message) (string, error) {
	if err := e.schedule(ctx, msg, false); err != nil {
		return "", err
	}
	JobsEnqueuedTotal.Inc()
	return msg.ID, nil
}

// schedule writes the job. With keepExisting set, a job already waiting under
// the same ID is left untouched.
func (e *RedisEnqueuer) schedule(ctx context.Context, msg *Message, keepExisting bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	score := float64(msg.ReleaseAt.UnixMilli())
	if keepExisting {
		err := scheduleNXScript.Run(ctx, e.client,
			[]string{delayedKey(e.name), jobsKey(e.name)},
			msg.ID, score, string(data),
		).Err()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("schedule %s on %s: %w", msg.ID, delayedKey(e.name), err)
		}
		return nil
	}

	_, err = e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobsKey(e.name), msg.ID, string(data))
		pipe.ZAdd(ctx, delayedKey(e.name), redis.Z{Score: score, Member: msg.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s on %s: %w", msg.ID, delayedKey(e.name), err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (e *RedisEnqueuer) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}
