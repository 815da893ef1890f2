// Package dispatch implements the worker side of the newsletter pipeline:
// it turns a released dispatch job into one email per active subscriber and
// settles the content's status.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/metrics"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/render"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// statusWriteTimeout bounds the failure-path status write, which runs even
// after the job context is done.
const statusWriteTimeout = 5 * time.Second

const defaultClaimLease = 10 * time.Minute

// Store is the persistence surface the dispatcher uses.
type Store interface {
	GetContent(ctx context.Context, id int64) (storage.Content, error)
	GetTopic(ctx context.Context, id int64) (storage.Topic, error)
	UpdateContentStatus(ctx context.Context, arg storage.UpdateContentStatusParams) (bool, error)
	ClaimContentDispatch(ctx context.Context, arg storage.ClaimContentDispatchParams) (bool, error)
	ReleaseContentDispatch(ctx context.Context, id int64, token string) error
	ListActiveSubscriptions(ctx context.Context, topicID int64) ([]storage.Recipient, error)
	AppendEmailLog(ctx context.Context, arg storage.AppendEmailLogParams) (storage.EmailLog, error)
	CountEmailLogsByStatus(ctx context.Context, contentID int64) (storage.EmailLogCounts, error)
}

var (
	_ Store                = (*storage.Queries)(nil)
	_ queue.MessageHandler = (*Handler)(nil)
)

// Config carries the ambient settings injected into the dispatcher.
type Config struct {
	// BaseURL is the public API address used in unsubscribe links.
	BaseURL     string
	FromAddress string
	FromName    string
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	// Concurrency limits in-flight sends per job. Zero means no limit.
	Concurrency int
	// ClaimLease is how long a run keeps other jobs for the same content
	// out. It should match the queue's process timeout.
	ClaimLease time.Duration
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	SubscriberID      int64
	Email             string
	Status            storage.EmailLogStatus
	ProviderMessageID string
	Err               error
}

// Result summarizes one dispatch run.
type Result struct {
	ContentID int64
	// Duplicate is set when the content had already been sent and the job
	// was dropped without side effects.
	Duplicate bool
	// InProgress is set when another run held the content's claim.
	InProgress bool
	Outcomes   []Outcome
	// Applied reports whether the final write moved the content to sent.
	// It is false when a concurrent run finalized first.
	Applied bool
	Counts  storage.EmailLogCounts
}

// Handler implements queue.MessageHandler for dispatch jobs.
type Handler struct {
	store    Store
	provider provider.Provider
	renderer *render.Renderer
	archive  archive.Store
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a Handler. archiveStore may be nil to disable archiving.
func NewHandler(
	store Store,
	p provider.Provider,
	renderer *render.Renderer,
	archiveStore archive.Store,
	cfg Config,
	log zerolog.Logger,
) *Handler {
	if archiveStore == nil {
		archiveStore = archive.NopStore{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = defaultClaimLease
	}
	return &Handler{
		store:    store,
		provider: p,
		renderer: renderer,
		archive:  archiveStore,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// HandleMessage implements queue.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, msg *queue.Message) error {
	_, err := h.Dispatch(ctx, msg.ID, msg.Payload)
	return err
}

// Dispatch runs the job for one content item. Missing content or topic is
// reported as queue.ErrDiscard. Any other error leaves the content failed
// and is returned so the queue retries the job.
func (h *Handler) Dispatch(ctx context.Context, jobID string, job queue.Job) (Result, error) {
	log := h.log.With().
		Str("job_id", jobID).
		Int64("content_id", job.ContentID).
		Int64("topic_id", job.TopicID).
		Logger()
	res := Result{ContentID: job.ContentID}

	content, err := h.store.GetContent(ctx, job.ContentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Msg("content not found, discarding job")
			return res, fmt.Errorf("content %d: %w", job.ContentID, queue.ErrDiscard)
		}
		return res, h.fail(ctx, log, job.ContentID, fmt.Errorf("get content: %w", err))
	}

	if content.Status == storage.ContentStatusSent {
		log.Info().Msg("content already sent, skipping duplicate job")
		res.Duplicate = true
		return res, nil
	}

	// An edit of the topic or send time enqueues a replacement job; the
	// job it replaced may still be delivered by backends without replace.
	if job.TopicID != content.TopicID || content.ScheduledAt.After(h.now()) {
		log.Warn().
			Int64("content_topic_id", content.TopicID).
			Time("scheduled_at", content.ScheduledAt).
			Msg("job superseded by a content update, discarding")
		return res, fmt.Errorf("content %d: superseded job: %w", job.ContentID, queue.ErrDiscard)
	}

	// Content stays pending for the whole run. The claim keeps a second
	// job for it from starting another fan-out.
	token := uuid.NewString()
	claimed, err := h.store.ClaimContentDispatch(ctx, storage.ClaimContentDispatchParams{
		ID:    job.ContentID,
		Token: token,
		Lease: h.cfg.ClaimLease,
	})
	if err != nil {
		return res, h.fail(ctx, log, job.ContentID, fmt.Errorf("claim content: %w", err))
	}
	if !claimed {
		log.Warn().Msg("content is being dispatched by another run, discarding job")
		res.InProgress = true
		return res, fmt.Errorf("content %d: dispatch in progress: %w", job.ContentID, queue.ErrDiscard)
	}
	defer h.release(ctx, log, job.ContentID, token)

	topic, err := h.store.GetTopic(ctx, job.TopicID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Msg("topic not found, discarding job")
			return res, fmt.Errorf("topic %d: %w", job.TopicID, queue.ErrDiscard)
		}
		return res, h.fail(ctx, log, job.ContentID, fmt.Errorf("get topic: %w", err))
	}

	recipients, err := h.store.ListActiveSubscriptions(ctx, job.TopicID)
	if err != nil {
		return res, h.fail(ctx, log, job.ContentID, fmt.Errorf("resolve recipients: %w", err))
	}
	metrics.DispatchRecipients.Observe(float64(len(recipients)))

	h.archiveIssue(ctx, log, content, topic)

	if len(recipients) == 0 {
		log.Warn().Msg("no active subscribers, marking content sent")
	} else {
		log.Info().Int("recipients", len(recipients)).Msg("dispatching content")
		res.Outcomes = h.fanOut(ctx, log, content, topic, recipients)
	}

	applied, err := h.store.UpdateContentStatus(ctx, storage.UpdateContentStatusParams{
		ID:               job.ContentID,
		Status:           storage.ContentStatusSent,
		SentAt:           pgtype.Timestamptz{Time: h.now(), Valid: true},
		ExpectedStatuses: []storage.ContentStatus{storage.ContentStatusPending, storage.ContentStatusFailed},
	})
	if err != nil {
		return res, h.fail(ctx, log, job.ContentID, fmt.Errorf("finalize content: %w", err))
	}
	res.Applied = applied
	if !applied {
		metrics.ContentFinalizedTotal.WithLabelValues("not_applied").Inc()
		log.Warn().Msg("content was finalized by another run")
	} else {
		metrics.ContentFinalizedTotal.WithLabelValues(string(storage.ContentStatusSent)).Inc()
	}

	if len(recipients) > 0 {
		counts, err := h.store.CountEmailLogsByStatus(ctx, job.ContentID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to count email logs")
		} else {
			res.Counts = counts
			log.Info().
				Int64("sent", counts.Sent).
				Int64("failed", counts.Failed).
				Msg("dispatch completed")
		}
	}

	return res, nil
}

// fanOut sends to every recipient concurrently and waits for all attempts.
// A failed attempt never cancels its siblings.
func (h *Handler) fanOut(ctx context.Context, log zerolog.Logger, content storage.Content, topic storage.Topic, recipients []storage.Recipient) []Outcome {
	start := time.Now()
	defer func() {
		metrics.DispatchFanoutDuration.Observe(time.Since(start).Seconds())
	}()

	outcomes := make([]Outcome, len(recipients))

	var g errgroup.Group
	if h.cfg.Concurrency > 0 {
		g.SetLimit(h.cfg.Concurrency)
	}
	for i, r := range recipients {
		g.Go(func() error {
			outcomes[i] = h.deliver(ctx, log, content, topic, r)
			return nil
		})
	}
	// Tasks always return nil; failures are recorded in outcomes.
	g.Wait()

	return outcomes
}

// deliver makes one attempt for one recipient and records it.
func (h *Handler) deliver(ctx context.Context, log zerolog.Logger, content storage.Content, topic storage.Topic, r storage.Recipient) Outcome {
	out := Outcome{SubscriberID: r.SubscriberID, Email: r.Email}

	result, err := h.send(ctx, content, topic, r)
	if err != nil {
		out.Status = storage.EmailLogStatusFailed
		out.Err = err
		log.Error().Err(err).Int64("subscriber_id", r.SubscriberID).Msg("delivery failed")
	} else {
		out.Status = storage.EmailLogStatusSent
		out.ProviderMessageID = result.ProviderMessageID
	}
	metrics.DeliveriesTotal.WithLabelValues(string(out.Status)).Inc()

	params := storage.AppendEmailLogParams{
		ContentID:    content.ID,
		SubscriberID: r.SubscriberID,
		Status:       out.Status,
	}
	if out.Err != nil {
		params.ErrorMessage = pgtype.Text{String: out.Err.Error(), Valid: true}
	}
	if out.ProviderMessageID != "" {
		params.ProviderMessageID = pgtype.Text{String: out.ProviderMessageID, Valid: true}
	}
	// The attempt is recorded even when its own deadline has passed.
	if _, err := h.store.AppendEmailLog(context.WithoutCancel(ctx), params); err != nil {
		log.Error().Err(err).Int64("subscriber_id", r.SubscriberID).Msg("failed to append email log")
	}

	return out
}

func (h *Handler) send(ctx context.Context, content storage.Content, topic storage.Topic, r storage.Recipient) (*provider.DeliveryResult, error) {
	unsubscribe := render.UnsubscribeURL(h.cfg.BaseURL, r.SubscriberID, topic.ID)
	rendered, err := h.renderer.Render(render.Issue{
		TopicName:      topic.Name,
		Title:          content.Title,
		Body:           content.Body,
		UnsubscribeURL: unsubscribe,
	})
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()

	result, err := h.provider.Send(sendCtx, &provider.Message{
		ID:       fmt.Sprintf("content-%d-sub-%d", content.ID, r.SubscriberID),
		From:     h.fromAddress(),
		To:       r.Email,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTML,
		TextBody: rendered.Text,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribe + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	})
	if err != nil {
		if sendCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("send timed out after %s: %w", h.cfg.SendTimeout, err)
		}
		return nil, err
	}
	return result, nil
}

// archiveIssue stores the web version of the issue. Failures are logged only.
func (h *Handler) archiveIssue(ctx context.Context, log zerolog.Logger, content storage.Content, topic storage.Topic) {
	rendered, err := h.renderer.Render(render.Issue{
		TopicName: topic.Name,
		Title:     content.Title,
		Body:      content.Body,
	})
	if err == nil {
		err = h.archive.Put(ctx, archive.IssueKey(content.ID), []byte(rendered.HTML))
	}
	if err != nil {
		metrics.ArchiveErrorsTotal.Inc()
		log.Warn().Err(err).Msg("failed to archive issue")
	}
}

// fail marks the content failed and returns cause. The write is conditional
// and never touches sent content.
func (h *Handler) fail(ctx context.Context, log zerolog.Logger, contentID int64, cause error) error {
	log.Error().Err(cause).Msg("dispatch failed")

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	applied, err := h.store.UpdateContentStatus(writeCtx, storage.UpdateContentStatusParams{
		ID:               contentID,
		Status:           storage.ContentStatusFailed,
		ExpectedStatuses: []storage.ContentStatus{storage.ContentStatusPending, storage.ContentStatusFailed},
	})
	switch {
	case err != nil:
		log.Error().Err(err).Msg("failed to mark content failed")
	case applied:
		metrics.ContentFinalizedTotal.WithLabelValues(string(storage.ContentStatusFailed)).Inc()
	}
	return cause
}

// release drops the run's claim so a retry of failed content can start
// right away.
func (h *Handler) release(ctx context.Context, log zerolog.Logger, contentID int64, token string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := h.store.ReleaseContentDispatch(writeCtx, contentID, token); err != nil {
		log.Warn().Err(err).Msg("failed to release dispatch claim")
	}
}

func (h *Handler) fromAddress() string {
	if h.cfg.FromName == "" {
		return h.cfg.FromAddress
	}
	return (&mail.Address{Name: h.cfg.FromName, Address: h.cfg.FromAddress}).String()
}
