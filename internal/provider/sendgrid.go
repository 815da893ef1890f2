package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"slices"
	"strings"
	"time"
)

const sendgridDefaultEndpoint = "https://api.sendgrid.com"

// SendGrid sends through the v3 Mail Send API.
type SendGrid struct {
	endpoint string
	bearer   string
	client   HTTPClient
}

func NewSendGrid(cfg ProviderConfig, client HTTPClient) *SendGrid {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	return &SendGrid{endpoint: endpoint, bearer: "Bearer " + cfg.APIKey, client: client}
}

func (s *SendGrid) GetName() string { return "sendgrid" }

// Send posts one personalization per message. SendGrid answers 202 with an
// empty body; the message id comes back in X-Message-Id.
func (s *SendGrid) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(newSendgridMail(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: http.MethodPost,
		URL:    s.endpoint + "/v3/mail/send",
		Headers: map[string]string{
			"Authorization": s.bearer,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("sendgrid: send request: %w", err)
	}
	if pe := ClassifyHTTPError("sendgrid", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}

	return &DeliveryResult{
		ProviderMessageID: resp.Headers["X-Message-Id"],
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"status_code": fmt.Sprint(resp.StatusCode)},
	}, nil
}

// HealthCheck lists the key's scopes and requires mail.send among them, so
// a read-only key fails readiness instead of every send.
func (s *SendGrid) HealthCheck(ctx context.Context) error {
	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodGet,
		URL:     s.endpoint + "/v3/scopes",
		Headers: map[string]string{"Authorization": s.bearer},
	})
	if err != nil {
		return fmt.Errorf("sendgrid: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid: health check returned status %d", resp.StatusCode)
	}

	var granted struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.Unmarshal(resp.Body, &granted); err == nil && granted.Scopes != nil &&
		!slices.Contains(granted.Scopes, "mail.send") {
		return fmt.Errorf("sendgrid: api key lacks the mail.send scope")
	}
	return nil
}

type sendgridMail struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Categories       []string                  `json:"categories"`
}

type sendgridPersonalization struct {
	To         []sendgridAddress `json:"to"`
	Headers    map[string]string `json:"headers,omitempty"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendgridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// newSendgridMail keeps text/plain ahead of text/html; the API rejects the
// reverse order. Headers and the dispatch id ride on the personalization.
func newSendgridMail(msg *Message) sendgridMail {
	var content []sendgridContent
	if msg.TextBody != "" {
		content = append(content, sendgridContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		content = append(content, sendgridContent{Type: "text/html", Value: msg.HTMLBody})
	}

	p := sendgridPersonalization{
		To:      []sendgridAddress{{Email: msg.To}},
		Headers: msg.Headers,
	}
	if msg.ID != "" {
		p.CustomArgs = map[string]string{"dispatch_id": msg.ID}
	}

	return sendgridMail{
		Personalizations: []sendgridPersonalization{p},
		From:             parseSendgridAddress(msg.From),
		Subject:          msg.Subject,
		Content:          content,
		Categories:       []string{"newsletter"},
	}
}

// parseSendgridAddress splits "Name <addr>". Input net/mail cannot parse is
// sent as a bare address and left for the API to reject.
func parseSendgridAddress(s string) sendgridAddress {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return sendgridAddress{Email: s}
	}
	return sendgridAddress{Email: addr.Address, Name: addr.Name}
}
