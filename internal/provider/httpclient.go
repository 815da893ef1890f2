package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent = "newsletter-dispatch/1"
	// API error bodies are short; anything larger is cut off.
	maxResponseBody = 1 << 20
)

// DefaultHTTPClient is the net/http implementation of HTTPClient shared by
// the API-based channels.
type DefaultHTTPClient struct {
	client *http.Client
}

func NewHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{client: &http.Client{Timeout: timeout}}
}

// Do sends req under ctx and returns the buffered response. Non-2xx
// statuses are not errors; callers classify them.
func (c *DefaultHTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("User-Agent", userAgent)
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
		Body:       data,
	}
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}
	return out, nil
}
