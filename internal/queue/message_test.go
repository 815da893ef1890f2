package queue

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	release := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	job := Job{ContentID: 42, TopicID: 7}

	before := time.Now()
	msg := NewMessage(job, release)
	after := time.Now()

	if msg.ID != "content-42" {
		t.Errorf("NewMessage() ID = %q, want %q", msg.ID, "content-42")
	}
	if msg.Payload != job {
		t.Errorf("NewMessage() Payload = %+v, want %+v", msg.Payload, job)
	}
	if !msg.ReleaseAt.Equal(release) {
		t.Errorf("NewMessage() ReleaseAt = %v, want %v", msg.ReleaseAt, release)
	}
	if msg.RetryCount != 0 {
		t.Errorf("NewMessage() RetryCount = %d, want 0", msg.RetryCount)
	}
	if msg.CreatedAt.Before(before) || msg.CreatedAt.After(after) {
		t.Errorf("NewMessage() CreatedAt = %v, want between %v and %v", msg.CreatedAt, before, after)
	}
}

func TestNewMessage_SameContentSameID(t *testing.T) {
	a := NewMessage(Job{ContentID: 5, TopicID: 1}, time.Now())
	b := NewMessage(Job{ContentID: 5, TopicID: 2}, time.Now().Add(time.Hour))
	if a.ID != b.ID {
		t.Errorf("IDs differ for the same content: %q vs %q", a.ID, b.ID)
	}
}

func TestMessage_PayloadWireFormat(t *testing.T) {
	msg := NewMessage(Job{ContentID: 3, TopicID: 9}, time.Now())
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"payload":{"contentId":3,"topicId":9}`) {
		t.Errorf("unexpected payload encoding: %s", data)
	}
}

func TestMessage_Due(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		release time.Time
		want    bool
	}{
		{name: "past", release: now.Add(-time.Minute), want: true},
		{name: "exactly now", release: now, want: true},
		{name: "future", release: now.Add(time.Second), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{ReleaseAt: tt.release}
			if got := msg.Due(now); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{name: "delayed", fn: delayedKey, want: "delayed:email"},
		{name: "jobs", fn: jobsKey, want: "jobs:email"},
		{name: "stream", fn: streamKey, want: "queue:email"},
		{name: "dlq", fn: dlqStreamKey, want: "dlq:email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn("email"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
