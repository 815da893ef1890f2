package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	resendDefaultEndpoint = "https://api.resend.com"
	resendSendPath        = "/emails"
	resendDomainsPath     = "/domains"
)

// Resend implements the Provider interface for the Resend HTTP API.
type Resend struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

func NewResend(cfg ProviderConfig, client HTTPClient) *Resend {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = resendDefaultEndpoint
	}
	return &Resend{apiKey: cfg.APIKey, endpoint: endpoint, client: client}
}

func (r *Resend) GetName() string { return "resend" }

type resendPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// Send posts the message to the Resend emails endpoint.
func (r *Resend) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(resendPayload{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Text:    msg.TextBody,
		Headers: msg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("resend: marshal request: %w", err)
	}

	resp, err := r.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    r.endpoint + resendSendPath,
		Headers: map[string]string{
			"Authorization": "Bearer " + r.apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("resend: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ClassifyHTTPError("resend", resp.StatusCode, string(resp.Body))
	}

	var out resendResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("resend: decode response: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: out.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata: map[string]string{
			"status_code": fmt.Sprintf("%d", resp.StatusCode),
		},
	}, nil
}

// HealthCheck lists domains, which any full-access key may do.
func (r *Resend) HealthCheck(ctx context.Context) error {
	resp, err := r.client.Do(ctx, &HTTPRequest{
		Method:  "GET",
		URL:     r.endpoint + resendDomainsPath,
		Headers: map[string]string{"Authorization": "Bearer " + r.apiKey},
	})
	if err != nil {
		return fmt.Errorf("resend: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("resend: health check returned status %d", resp.StatusCode)
	}
	return nil
}
