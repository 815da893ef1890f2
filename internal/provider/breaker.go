package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("provider: circuit open")

const (
	defaultBreakerMaxRequests      = 3
	defaultBreakerInterval         = 60 * time.Second
	defaultBreakerTimeout          = 30 * time.Second
	defaultBreakerFailureThreshold = 5
)

// Breaker wraps a Provider with a circuit breaker. Permanent rejections of
// a single recipient do not count against the channel.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Provider, cfg ProviderConfig, logger zerolog.Logger) *Breaker {
	maxRequests := cfg.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = defaultBreakerMaxRequests
	}
	interval := cfg.BreakerInterval
	if interval == 0 {
		interval = defaultBreakerInterval
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = defaultBreakerFailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        next.GetName(),
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) GetName() string { return b.next.GetName() }

func (b *Breaker) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, b.next.GetName())
		}
		return nil, err
	}
	return out.(*DeliveryResult), nil
}

// HealthCheck bypasses the breaker so a recovering channel is still probed.
func (b *Breaker) HealthCheck(ctx context.Context) error {
	return b.next.HealthCheck(ctx)
}

// State reports the breaker state name ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
