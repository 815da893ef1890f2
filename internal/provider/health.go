package provider

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
)

const (
	defaultProbeEvery   = 30 * time.Second
	probeTimeout        = 10 * time.Second
	unhealthyThreshold  = 3
	circuitOpen         = "open"
	notProbedYetMessage = "not probed yet"
)

// HealthStatus is the probe history of one channel.
type HealthStatus struct {
	Healthy             bool
	LastCheck           time.Time
	ConsecutiveFailures int
	LastError           string
}

// HealthChecker probes the registered delivery channels in the background
// and backs the worker's readiness endpoint. A channel is marked down after
// unhealthyThreshold failed probes in a row and up again on the first
// success.
type HealthChecker struct {
	registry *Registry
	every    time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	statuses map[string]HealthStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthChecker returns a checker over registry. interval <= 0 selects
// a 30s period.
func NewHealthChecker(registry *Registry, interval time.Duration, logger zerolog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = defaultProbeEvery
	}
	return &HealthChecker{
		registry: registry,
		every:    interval,
		logger:   logger.With().Str("component", "provider_health").Logger(),
		statuses: make(map[string]HealthStatus),
		done:     make(chan struct{}),
	}
}

// Start probes once right away and then every interval until Stop.
func (hc *HealthChecker) Start(ctx context.Context) {
	ctx, hc.cancel = context.WithCancel(ctx)
	go func() {
		defer close(hc.done)
		hc.checkAll(ctx)

		ticker := time.NewTicker(hc.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hc.checkAll(ctx)
			}
		}
	}()
}

// Stop is a no-op if Start was never called.
func (hc *HealthChecker) Stop() {
	if hc.cancel == nil {
		return
	}
	hc.cancel()
	<-hc.done
}

// IsHealthy reports false for channels that have never been probed.
func (hc *HealthChecker) IsHealthy(name string) bool {
	st, ok := hc.GetStatus(name)
	return ok && st.Healthy
}

func (hc *HealthChecker) GetStatus(name string) (HealthStatus, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	st, ok := hc.statuses[name]
	return st, ok
}

// GetAllStatuses returns a copy keyed by channel name.
func (hc *HealthChecker) GetAllStatuses() map[string]HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return maps.Clone(hc.statuses)
}

// Check fails while any registered channel is down, unprobed, or behind an
// open circuit breaker. The error names each channel with its reason.
func (hc *HealthChecker) Check(_ context.Context) error {
	var reasons []string
	for _, p := range hc.registry.All() {
		name := p.GetName()
		if b, ok := p.(*Breaker); ok && b.State() == circuitOpen {
			reasons = append(reasons, name+" (circuit open)")
			continue
		}
		st, ok := hc.GetStatus(name)
		switch {
		case !ok:
			reasons = append(reasons, fmt.Sprintf("%s (%s)", name, notProbedYetMessage))
		case !st.Healthy:
			reasons = append(reasons, fmt.Sprintf("%s (%s)", name, st.LastError))
		}
	}
	if len(reasons) > 0 {
		return fmt.Errorf("unhealthy providers: %s", strings.Join(reasons, ", "))
	}
	return nil
}

func (hc *HealthChecker) checkAll(ctx context.Context) {
	for _, p := range hc.registry.All() {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.HealthCheck(probeCtx)
		cancel()
		hc.record(p.GetName(), err)
	}
}

func (hc *HealthChecker) record(name string, err error) {
	hc.mu.Lock()
	prev, seen := hc.statuses[name]
	next := HealthStatus{Healthy: true, LastCheck: time.Now()}
	if err != nil {
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		next.LastError = err.Error()
		next.Healthy = next.ConsecutiveFailures < unhealthyThreshold
	}
	hc.statuses[name] = next
	hc.mu.Unlock()

	up := 0.0
	if next.Healthy {
		up = 1
	}
	metrics.ProviderUp.WithLabelValues(name).Set(up)

	if seen && prev.Healthy != next.Healthy {
		ev := hc.logger.Info()
		if !next.Healthy {
			ev = hc.logger.Warn().Str("last_error", next.LastError)
		}
		ev.Str("provider", name).Bool("healthy", next.Healthy).Msg("provider health changed")
	}
}
