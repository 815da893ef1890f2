package queue

import (
	"strconv"
	"time"
)

// Job is the dispatch payload: which Content to send to which Topic.
type Job struct {
	ContentID int64 `json:"contentId"`
	TopicID   int64 `json:"topicId"`
}

// Message is the queue envelope around a Job.
//
// ID is derived from the Content so that enqueueing the same Content twice
// replaces the pending job instead of creating a second one.
type Message struct {
	ID         string    `json:"id"`
	Payload    Job       `json:"payload"`
	ReleaseAt  time.Time `json:"release_at"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage creates a Message for job that becomes due at releaseAt.
func NewMessage(job Job, releaseAt time.Time) *Message {
	return &Message{
		ID:        JobID(job.ContentID),
		Payload:   job,
		ReleaseAt: releaseAt,
		CreatedAt: time.Now(),
	}
}

// JobID returns the job identity for a Content.
func JobID(contentID int64) string {
	return "content-" + strconv.FormatInt(contentID, 10)
}

// Due reports whether the message may be handed to a consumer at now.
func (m *Message) Due(now time.Time) bool {
	return !m.ReleaseAt.After(now)
}

// delayedKey is the sorted set of not-yet-due job IDs scored by release time.
func delayedKey(name string) string {
	return "delayed:" + name
}

// jobsKey is the hash holding the serialized envelope of each delayed job.
func jobsKey(name string) string {
	return "jobs:" + name
}

// streamKey is the stream of due jobs read by the consumer group.
func streamKey(name string) string {
	return "queue:" + name
}

// dlqStreamKey is the dead letter stream.
func dlqStreamKey(name string) string {
	return "dlq:" + name
}
