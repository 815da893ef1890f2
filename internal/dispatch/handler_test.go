package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/render"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// memStore is an in-memory Store with optional error injection.
type memStore struct {
	mu         sync.Mutex
	contents   map[int64]storage.Content
	topics     map[int64]storage.Topic
	recipients map[int64][]storage.Recipient
	logs       []storage.AppendEmailLogParams

	claims map[int64]memClaim

	getContentErr  error
	recipientsErr  error
	finalizeErr    error
	statusWrites   []storage.UpdateContentStatusParams
	appendLogCalls atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		contents:   map[int64]storage.Content{},
		topics:     map[int64]storage.Topic{},
		recipients: map[int64][]storage.Recipient{},
		claims:     map[int64]memClaim{},
	}
}

type memClaim struct {
	token string
	at    time.Time
}

func (m *memStore) GetContent(_ context.Context, id int64) (storage.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getContentErr != nil {
		return storage.Content{}, m.getContentErr
	}
	c, ok := m.contents[id]
	if !ok {
		return storage.Content{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetTopic(_ context.Context, id int64) (storage.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[id]
	if !ok {
		return storage.Topic{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) UpdateContentStatus(_ context.Context, arg storage.UpdateContentStatusParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusWrites = append(m.statusWrites, arg)
	if arg.Status == storage.ContentStatusSent && m.finalizeErr != nil {
		return false, m.finalizeErr
	}
	c, ok := m.contents[arg.ID]
	if !ok || c.Status == storage.ContentStatusSent {
		return false, nil
	}
	if len(arg.ExpectedStatuses) > 0 {
		match := false
		for _, s := range arg.ExpectedStatuses {
			if s == c.Status {
				match = true
			}
		}
		if !match {
			return false, nil
		}
	}
	c.Status = arg.Status
	if arg.SentAt.Valid {
		c.SentAt = arg.SentAt
	}
	m.contents[arg.ID] = c
	return true, nil
}

func (m *memStore) ClaimContentDispatch(_ context.Context, arg storage.ClaimContentDispatchParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[arg.ID]
	if !ok || c.Status == storage.ContentStatusSent {
		return false, nil
	}
	if cl, held := m.claims[arg.ID]; held && time.Since(cl.at) < arg.Lease {
		return false, nil
	}
	m.claims[arg.ID] = memClaim{token: arg.Token, at: time.Now()}
	return true, nil
}

func (m *memStore) ReleaseContentDispatch(_ context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[id].token == token {
		delete(m.claims, id)
	}
	return nil
}

func (m *memStore) ListActiveSubscriptions(_ context.Context, topicID int64) ([]storage.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recipientsErr != nil {
		return nil, m.recipientsErr
	}
	return m.recipients[topicID], nil
}

func (m *memStore) AppendEmailLog(_ context.Context, arg storage.AppendEmailLogParams) (storage.EmailLog, error) {
	m.appendLogCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, arg)
	return storage.EmailLog{ContentID: arg.ContentID, SubscriberID: arg.SubscriberID, Status: arg.Status}, nil
}

func (m *memStore) CountEmailLogsByStatus(_ context.Context, contentID int64) (storage.EmailLogCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c storage.EmailLogCounts
	for _, l := range m.logs {
		if l.ContentID != contentID {
			continue
		}
		switch l.Status {
		case storage.EmailLogStatusSent:
			c.Sent++
		case storage.EmailLogStatusFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (m *memStore) status(id int64) storage.ContentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contents[id].Status
}

// scriptedProvider fails for any recipient listed in failFor.
type scriptedProvider struct {
	mu      sync.Mutex
	sent    []*provider.Message
	failFor map[string]bool
	delay   time.Duration
}

func (p *scriptedProvider) GetName() string                   { return "scripted" }
func (p *scriptedProvider) HealthCheck(context.Context) error { return nil }

func (p *scriptedProvider) Send(ctx context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	if p.failFor[msg.To] {
		return nil, errors.New("mailbox unavailable")
	}
	return &provider.DeliveryResult{ProviderMessageID: "pm-" + msg.ID, Status: provider.StatusSent}, nil
}

type memArchive struct {
	mu    sync.Mutex
	items map[string][]byte
	err   error
}

func (a *memArchive) Put(_ context.Context, key string, html []byte) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.items == nil {
		a.items = map[string][]byte{}
	}
	a.items[key] = html
	return nil
}

func (a *memArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.items[key]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return b, nil
}

func (a *memArchive) Delete(context.Context, string) error { return nil }

func seededStore(status storage.ContentStatus, emails ...string) *memStore {
	s := newMemStore()
	s.topics[1] = storage.Topic{ID: 1, Name: "Go Weekly"}
	s.contents[10] = storage.Content{ID: 10, TopicID: 1, Title: "Issue 1", Body: "Hello", Status: status}
	for i, e := range emails {
		s.recipients[1] = append(s.recipients[1], storage.Recipient{SubscriberID: int64(100 + i), Email: e})
	}
	return s
}

func newTestHandler(t *testing.T, s Store, p provider.Provider, a archive.Store, cfg Config) *Handler {
	t.Helper()
	r, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000"
	}
	if cfg.FromAddress == "" {
		cfg.FromAddress = "news@example.com"
	}
	return NewHandler(s, p, r, a, cfg, zerolog.Nop())
}

func job() queue.Job { return queue.Job{ContentID: 10, TopicID: 1} }

func TestDispatch_AllDelivered(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com", "b@example.com", "c@example.com")
	p := &scriptedProvider{}
	a := &memArchive{}
	h := newTestHandler(t, s, p, a, Config{FromName: "Newsletter Service"})

	res, err := h.Dispatch(context.Background(), "content-10", job())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Applied {
		t.Error("expected final write to apply")
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
	if res.Counts.Sent != 3 || res.Counts.Failed != 0 {
		t.Errorf("counts = %+v, want 3 sent", res.Counts)
	}
	if len(p.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(p.sent))
	}

	msg := p.sent[0]
	if msg.Subject != "Go Weekly - Issue 1" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.From != `"Newsletter Service" <news@example.com>` {
		t.Errorf("from = %q", msg.From)
	}
	if !strings.HasPrefix(msg.Headers["List-Unsubscribe"], "<http://localhost:3000/unsubscribe?") {
		t.Errorf("List-Unsubscribe = %q", msg.Headers["List-Unsubscribe"])
	}
	if got := msg.Headers["List-Unsubscribe-Post"]; got != "List-Unsubscribe=One-Click" {
		t.Errorf("List-Unsubscribe-Post = %q", got)
	}
	if !strings.Contains(msg.HTMLBody, "topic=1") {
		t.Error("expected unsubscribe link in html body")
	}

	for _, l := range s.logs {
		if !l.ProviderMessageID.Valid || !strings.HasPrefix(l.ProviderMessageID.String, "pm-content-10-sub-") {
			t.Errorf("log provider id = %+v", l.ProviderMessageID)
		}
	}

	html, err := a.Get(context.Background(), archive.IssueKey(10))
	if err != nil {
		t.Fatalf("expected archived issue: %v", err)
	}
	if strings.Contains(string(html), "unsubscribe?") {
		t.Error("archived web version must not carry a personal unsubscribe link")
	}
}

func TestDispatch_PartialFailureStillSent(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com", "bad@example.com", "c@example.com")
	p := &scriptedProvider{failFor: map[string]bool{"bad@example.com": true}}
	h := newTestHandler(t, s, p, nil, Config{})

	res, err := h.Dispatch(context.Background(), "content-10", job())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
	if res.Counts.Sent != 2 || res.Counts.Failed != 1 {
		t.Errorf("counts = %+v, want 2 sent 1 failed", res.Counts)
	}
	if len(p.sent) != 3 {
		t.Errorf("expected every recipient attempted, got %d", len(p.sent))
	}

	var failed *storage.AppendEmailLogParams
	for i := range s.logs {
		if s.logs[i].Status == storage.EmailLogStatusFailed {
			failed = &s.logs[i]
		}
	}
	if failed == nil {
		t.Fatal("expected a failed email log")
	}
	if !failed.ErrorMessage.Valid || !strings.Contains(failed.ErrorMessage.String, "mailbox unavailable") {
		t.Errorf("error message = %+v", failed.ErrorMessage)
	}
	if failed.ProviderMessageID.Valid {
		t.Error("failed attempt must not carry a provider id")
	}
}

func TestDispatch_NoRecipients(t *testing.T) {
	s := seededStore(storage.ContentStatusPending)
	p := &scriptedProvider{}
	h := newTestHandler(t, s, p, nil, Config{})

	res, err := h.Dispatch(context.Background(), "content-10", job())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
	if len(res.Outcomes) != 0 || len(s.logs) != 0 || len(p.sent) != 0 {
		t.Error("expected no attempts")
	}
}

func TestDispatch_AlreadySent(t *testing.T) {
	s := seededStore(storage.ContentStatusSent, "a@example.com")
	p := &scriptedProvider{}
	h := newTestHandler(t, s, p, nil, Config{})

	res, err := h.Dispatch(context.Background(), "content-10", job())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Duplicate {
		t.Error("expected duplicate")
	}
	if len(p.sent) != 0 || len(s.logs) != 0 || len(s.statusWrites) != 0 {
		t.Error("duplicate job must have no side effects")
	}
}

func TestDispatch_RetryOfFailedContent(t *testing.T) {
	s := seededStore(storage.ContentStatusFailed, "a@example.com")
	h := newTestHandler(t, s, &scriptedProvider{}, nil, Config{})

	if _, err := h.Dispatch(context.Background(), "content-10", job()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
}

func TestDispatch_Discard(t *testing.T) {
	tests := []struct {
		name   string
		job    queue.Job
		mutate func(s *memStore)
	}{
		{name: "missing content", job: queue.Job{ContentID: 99, TopicID: 1}},
		{name: "missing topic", job: job(), mutate: func(s *memStore) { delete(s.topics, 1) }},
		{name: "topic changed", job: queue.Job{ContentID: 10, TopicID: 2}},
		{
			name: "rescheduled later",
			job:  job(),
			mutate: func(s *memStore) {
				c := s.contents[10]
				c.ScheduledAt = time.Now().Add(time.Hour)
				s.contents[10] = c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore(storage.ContentStatusPending, "a@example.com")
			if tt.mutate != nil {
				tt.mutate(s)
			}
			p := &scriptedProvider{}
			h := newTestHandler(t, s, p, nil, Config{})

			_, err := h.Dispatch(context.Background(), "j", tt.job)
			if !errors.Is(err, queue.ErrDiscard) {
				t.Fatalf("error = %v, want ErrDiscard", err)
			}
			if len(p.sent) != 0 || len(s.statusWrites) != 0 {
				t.Error("discarded job must have no side effects")
			}
			if got := s.status(10); tt.name != "missing content" && got != storage.ContentStatusPending {
				t.Errorf("status = %s, want pending", got)
			}
		})
	}
}

func TestDispatch_InfrastructureErrorMarksFailed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *memStore)
	}{
		{name: "recipient lookup", mutate: func(s *memStore) { s.recipientsErr = errors.New("connection reset") }},
		{name: "final write", mutate: func(s *memStore) { s.finalizeErr = errors.New("connection reset") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore(storage.ContentStatusPending, "a@example.com")
			tt.mutate(s)
			h := newTestHandler(t, s, &scriptedProvider{}, nil, Config{})

			_, err := h.Dispatch(context.Background(), "content-10", job())
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, queue.ErrDiscard) {
				t.Fatal("infrastructure errors must be retried, not discarded")
			}
			if got := s.status(10); got != storage.ContentStatusFailed {
				t.Errorf("status = %s, want failed", got)
			}
		})
	}
}

func TestDispatch_GetContentErrorIsRetried(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com")
	s.getContentErr = errors.New("connection refused")
	h := newTestHandler(t, s, &scriptedProvider{}, nil, Config{})

	_, err := h.Dispatch(context.Background(), "content-10", job())
	if err == nil || errors.Is(err, queue.ErrDiscard) {
		t.Fatalf("error = %v, want retryable error", err)
	}
}

func TestDispatch_ArchiveFailureIsNotFatal(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com")
	a := &memArchive{err: errors.New("bucket unavailable")}
	h := newTestHandler(t, s, &scriptedProvider{}, a, Config{})

	if _, err := h.Dispatch(context.Background(), "content-10", job()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
}

func TestDispatch_SendTimeout(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "slow@example.com")
	p := &scriptedProvider{delay: time.Second}
	h := newTestHandler(t, s, p, nil, Config{SendTimeout: 20 * time.Millisecond})

	res, err := h.Dispatch(context.Background(), "content-10", job())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Status != storage.EmailLogStatusFailed {
		t.Fatalf("outcomes = %+v, want one failed", res.Outcomes)
	}
	if !strings.Contains(res.Outcomes[0].Err.Error(), "timed out") {
		t.Errorf("error = %v", res.Outcomes[0].Err)
	}
	if s.appendLogCalls.Load() != 1 {
		t.Error("timed out attempt must still be logged")
	}
}

func TestDispatch_ConcurrencyLimit(t *testing.T) {
	emails := make([]string, 8)
	for i := range emails {
		emails[i] = string(rune('a'+i)) + "@example.com"
	}
	s := seededStore(storage.ContentStatusPending, emails...)

	var inFlight, peak atomic.Int32
	p := &countingProvider{inFlight: &inFlight, peak: &peak}
	h := newTestHandler(t, s, p, nil, Config{Concurrency: 2})

	if _, err := h.Dispatch(context.Background(), "content-10", job()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if s.appendLogCalls.Load() != 8 {
		t.Errorf("logged %d attempts, want 8", s.appendLogCalls.Load())
	}
}

type countingProvider struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (p *countingProvider) GetName() string                   { return "counting" }
func (p *countingProvider) HealthCheck(context.Context) error { return nil }

func (p *countingProvider) Send(_ context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	n := p.inFlight.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	p.inFlight.Add(-1)
	return &provider.DeliveryResult{ProviderMessageID: msg.ID}, nil
}

func TestDispatch_OverlappingRunsSendOnce(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com", "b@example.com", "c@example.com")
	p := &scriptedProvider{delay: 100 * time.Millisecond}
	h := newTestHandler(t, s, p, nil, Config{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.Dispatch(context.Background(), "content-10", job())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, queue.ErrDiscard) {
			t.Errorf("run %d error = %v, want nil or ErrDiscard", i, err)
		}
	}
	if len(p.sent) != 3 {
		t.Errorf("sent %d emails, want one per recipient (3)", len(p.sent))
	}
	if len(s.logs) != 3 {
		t.Errorf("logged %d attempts, want 3", len(s.logs))
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
}

func TestDispatch_Claim(t *testing.T) {
	tests := []struct {
		name       string
		claimedAgo time.Duration
		wantSent   int
		wantBusy   bool
	}{
		{name: "live claim discards the job", claimedAgo: time.Minute, wantSent: 0, wantBusy: true},
		{name: "expired claim is taken over", claimedAgo: time.Hour, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore(storage.ContentStatusPending, "a@example.com")
			s.claims[10] = memClaim{token: "other-run", at: time.Now().Add(-tt.claimedAgo)}
			p := &scriptedProvider{}
			h := newTestHandler(t, s, p, nil, Config{ClaimLease: 10 * time.Minute})

			res, err := h.Dispatch(context.Background(), "content-10", job())
			if tt.wantBusy {
				if !errors.Is(err, queue.ErrDiscard) || !res.InProgress {
					t.Fatalf("Dispatch() = %+v, %v; want in-progress discard", res, err)
				}
				if got := s.status(10); got != storage.ContentStatusPending {
					t.Errorf("status = %s, want pending", got)
				}
			} else if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if len(p.sent) != tt.wantSent {
				t.Errorf("sent %d emails, want %d", len(p.sent), tt.wantSent)
			}
		})
	}
}

func TestDispatch_FailedRunReleasesClaim(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com")
	s.recipientsErr = errors.New("connection reset")
	p := &scriptedProvider{}
	h := newTestHandler(t, s, p, nil, Config{})

	if _, err := h.Dispatch(context.Background(), "content-10", job()); err == nil {
		t.Fatal("expected error")
	}
	if _, held := s.claims[10]; held {
		t.Fatal("failed run kept its claim")
	}

	s.mu.Lock()
	s.recipientsErr = nil
	s.mu.Unlock()
	if _, err := h.Dispatch(context.Background(), "content-10", job()); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
	if len(p.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(p.sent))
	}
}

func TestHandleMessage(t *testing.T) {
	s := seededStore(storage.ContentStatusPending, "a@example.com")
	h := newTestHandler(t, s, &scriptedProvider{}, nil, Config{})

	var mh queue.MessageHandler = h
	msg := queue.NewMessage(job(), time.Now())
	if err := mh.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := s.status(10); got != storage.ContentStatusSent {
		t.Errorf("status = %s, want sent", got)
	}
}
