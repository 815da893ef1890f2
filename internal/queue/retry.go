package queue

import (
	"errors"
	"math/rand/v2"
	"time"
)

// defaultBackoff is the base wait before the first, second, ... retry.
// Later retries reuse the last step.
var defaultBackoff = []time.Duration{
	30 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// RetryPolicy decides what happens to a job after its handler returns.
// MaxRetries counts deliveries: a job that has failed MaxRetries times is
// dead-lettered instead of rescheduled.
type RetryPolicy struct {
	MaxRetries int
	Backoff    []time.Duration

	// rand returns a value in [0, 1). Nil means math/rand/v2.
	rand func() float64
}

func NewRetryPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{MaxRetries: maxRetries, Backoff: defaultBackoff}
}

// Delay is the wait before retry n (1 for the first retry). The base step
// is scaled into [0.5, 1.0] of itself so a burst of jobs that failed
// together does not return together.
func (p *RetryPolicy) Delay(n int) time.Duration {
	step := p.Backoff[min(max(n-1, 0), len(p.Backoff)-1)]
	r := rand.Float64
	if p.rand != nil {
		r = p.rand
	}
	return time.Duration(float64(step) * (0.5 + r()/2))
}

// outcome is how a delivered job leaves the consumer.
type outcome string

const (
	outcomeDone      outcome = "sent"
	outcomeDiscarded outcome = "discarded"
	outcomeRetry     outcome = "failed"
	outcomeDead      outcome = "dlq"
)

// settle maps a handler result to an outcome. For outcomeRetry it bumps
// msg.RetryCount and moves msg.ReleaseAt to the next attempt; for
// outcomeDead only the count changes.
func (p *RetryPolicy) settle(msg *Message, err error, now time.Time) outcome {
	switch {
	case err == nil:
		return outcomeDone
	case errors.Is(err, ErrDiscard):
		return outcomeDiscarded
	}
	msg.RetryCount++
	if msg.RetryCount >= p.MaxRetries {
		return outcomeDead
	}
	msg.ReleaseAt = now.Add(p.Delay(msg.RetryCount))
	return outcomeRetry
}
