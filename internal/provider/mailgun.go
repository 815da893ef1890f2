package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const mailgunDefaultEndpoint = "https://api.mailgun.net"

// Mailgun sends through the Mailgun messages API of one sending domain.
type Mailgun struct {
	domain   string
	endpoint string
	auth     string
	client   HTTPClient
}

func NewMailgun(cfg ProviderConfig, client HTTPClient) *Mailgun {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = mailgunDefaultEndpoint
	}
	return &Mailgun{
		domain:   cfg.Domain,
		endpoint: endpoint,
		auth:     "Basic " + base64.StdEncoding.EncodeToString([]byte("api:"+cfg.APIKey)),
		client:   client,
	}
}

func (m *Mailgun) GetName() string { return "mailgun" }

// Send posts msg as a form. The dispatch id travels as the custom variable
// v:dispatch-id so Mailgun events can be matched to the EmailLog row.
func (m *Mailgun) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	form := url.Values{
		"from":          {msg.From},
		"to":            {msg.To},
		"subject":       {msg.Subject},
		"o:tag":         {"newsletter"},
		"v:dispatch-id": {msg.ID},
	}
	if msg.TextBody != "" {
		form.Set("text", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		form.Set("html", msg.HTMLBody)
	}
	for k, v := range msg.Headers {
		form.Set("h:"+k, v)
	}

	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: http.MethodPost,
		URL:    m.endpoint + "/v3/" + url.PathEscape(m.domain) + "/messages",
		Headers: map[string]string{
			"Authorization": m.auth,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("mailgun: send request: %w", err)
	}
	if pe := ClassifyHTTPError("mailgun", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}

	var accepted struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &accepted)
	return &DeliveryResult{
		ProviderMessageID: strings.Trim(accepted.ID, "<>"),
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"message": accepted.Message},
	}, nil
}

// HealthCheck fetches the sending domain and requires it to be active.
func (m *Mailgun) HealthCheck(ctx context.Context) error {
	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodGet,
		URL:     m.endpoint + "/v3/domains/" + url.PathEscape(m.domain),
		Headers: map[string]string{"Authorization": m.auth},
	})
	if err != nil {
		return fmt.Errorf("mailgun: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailgun: health check returned status %d", resp.StatusCode)
	}

	var info struct {
		Domain struct {
			State string `json:"state"`
		} `json:"domain"`
	}
	if err := json.Unmarshal(resp.Body, &info); err == nil && info.Domain.State != "" && info.Domain.State != "active" {
		return fmt.Errorf("mailgun: domain %s is %s", m.domain, info.Domain.State)
	}
	return nil
}
