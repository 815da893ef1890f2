package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// OverdueLister finds pending content whose release time has long passed
// and that no dispatch run is working on.
type OverdueLister interface {
	ListOverduePendingContent(ctx context.Context, before time.Time, limit int32) ([]storage.Content, error)
}

var _ OverdueLister = (*storage.Queries)(nil)

// ReconcilerConfig controls the orphan sweep.
type ReconcilerConfig struct {
	// Schedule is a robfig/cron spec such as "@every 1m".
	Schedule string
	// Grace is how long past its scheduledAt a pending item may sit before
	// it is considered orphaned. It must exceed the longest a job can wait
	// in flight plus run. It also throttles repeated re-enqueues of the
	// same item.
	Grace time.Duration
	Limit int32
}

// Reconciler periodically re-enqueues pending content that was never
// dispatched, e.g. because its job was lost with a queue outage.
type Reconciler struct {
	store   OverdueLister
	trigger *Trigger
	cfg     ReconcilerConfig
	log     zerolog.Logger
	now     func() time.Time

	cron *cron.Cron

	mu        sync.Mutex
	requeued  map[int64]time.Time
	isRunning bool
}

// NewReconciler creates a Reconciler. Call Start to begin the sweep.
func NewReconciler(store OverdueLister, trigger *Trigger, cfg ReconcilerConfig, log zerolog.Logger) *Reconciler {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	return &Reconciler{
		store:    store,
		trigger:  trigger,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		requeued: make(map[int64]time.Time),
	}
}

// Start registers the sweep and starts the cron scheduler.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("reconciler is already running")
	}

	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error().Err(err).Msg("reconcile sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add reconcile job: %w", err)
	}

	r.cron.Start()
	r.isRunning = true

	r.log.Info().
		Str("schedule", r.cfg.Schedule).
		Dur("grace", r.cfg.Grace).
		Msg("reconciler started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep up to ctx's deadline.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	select {
	case <-r.cron.Stop().Done():
		r.log.Info().Msg("reconciler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reconciler stop: %w", ctx.Err())
	}
}

// RunOnce performs one sweep and returns the number of re-enqueued items.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	now := r.now()

	items, err := r.store.ListOverduePendingContent(ctx, now.Add(-r.cfg.Grace), r.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue content: %w", err)
	}

	r.mu.Lock()
	for id, at := range r.requeued {
		if now.Sub(at) >= r.cfg.Grace {
			delete(r.requeued, id)
		}
	}
	r.mu.Unlock()

	requeued := 0
	for _, c := range items {
		r.mu.Lock()
		_, recent := r.requeued[c.ID]
		r.mu.Unlock()
		if recent {
			continue
		}

		if err := r.trigger.Schedule(ctx, SourceReconcile, c.ID, c.TopicID, now); err != nil {
			// The queue is likely down; the next sweep tries again.
			return requeued, err
		}

		r.mu.Lock()
		r.requeued[c.ID] = now
		r.mu.Unlock()
		requeued++
	}

	if requeued > 0 {
		r.log.Warn().Int("count", requeued).Msg("re-enqueued orphaned content")
	}
	return requeued, nil
}
