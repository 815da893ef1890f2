// Package provider implements the delivery channels that send one rendered
// newsletter issue to one recipient.
package provider

import (
	"context"
	"time"
)

// Provider is one delivery channel. Send must be safe for concurrent use;
// the dispatch fan-out calls it from many goroutines.
type Provider interface {
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName is the provider.type value that selects the channel.
	GetName() string
	// HealthCheck is a cheap authenticated probe, not a test send.
	HealthCheck(ctx context.Context) error
}

// HTTPClient is the transport behind the HTTP API channels.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse keeps the first value of each response header.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one rendered issue addressed to one subscriber.
type Message struct {
	// ID is "content-<id>-sub-<id>"; it seeds the Message-ID header and is
	// passed to the API channels as a tracking tag.
	ID string
	// From may carry a display name: "Go Weekly <news@example.com>".
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	// Headers are added verbatim, List-Unsubscribe among them.
	Headers map[string]string
}

// DeliveryResult is what the channel reported for an accepted message.
// ProviderMessageID is stored on the EmailLog row.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)
