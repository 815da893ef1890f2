package provider

import (
	"context"
	"sync"
)

// fakeHTTPClient records requests and answers with a scripted response.
type fakeHTTPClient struct {
	mu       sync.Mutex
	requests []*HTTPRequest
	DoFunc   func(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

func (f *fakeHTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.DoFunc != nil {
		return f.DoFunc(ctx, req)
	}
	return &HTTPResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
}

func (f *fakeHTTPClient) last() *HTTPRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func respond(status int, body string) func(context.Context, *HTTPRequest) (*HTTPResponse, error) {
	return func(context.Context, *HTTPRequest) (*HTTPResponse, error) {
		return &HTTPResponse{StatusCode: status, Body: []byte(body)}, nil
	}
}

// fakeProvider is a Provider whose behaviour is set per test.
type fakeProvider struct {
	name            string
	SendFunc        func(ctx context.Context, msg *Message) (*DeliveryResult, error)
	HealthCheckFunc func(ctx context.Context) error
}

func (f *fakeProvider) GetName() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if f.SendFunc != nil {
		return f.SendFunc(ctx, msg)
	}
	return &DeliveryResult{ProviderMessageID: "fake-" + msg.ID, Status: StatusSent}, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error {
	if f.HealthCheckFunc != nil {
		return f.HealthCheckFunc(ctx)
	}
	return nil
}

func testMessage() *Message {
	return &Message{
		ID:       "content-1-sub-2",
		From:     "Newsletter Service <news@example.com>",
		To:       "reader@example.com",
		Subject:  "Go Weekly - Generics deep dive",
		HTMLBody: "<h1>Go Weekly</h1><p>Hello</p>",
		TextBody: "Go Weekly\n=========\n\nHello",
		Headers: map[string]string{
			"List-Unsubscribe": "<https://news.example.com/unsubscribe?subscriber=2&topic=1>",
		},
	}
}
