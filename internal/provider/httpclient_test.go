package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultHTTPClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.UserAgent() != userAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Message-Id", "m-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewHTTPClient(5 * time.Second)
	resp, err := c.Do(context.Background(), &HTTPRequest{
		Method:  "POST",
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer k"},
		Body:    []byte("ping"),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if string(resp.Body) != "ping" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Headers["X-Message-Id"] != "m-1" {
		t.Errorf("Headers = %v", resp.Headers)
	}
}

func TestDefaultHTTPClient_DoHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient(5*time.Second).Do(ctx, &HTTPRequest{Method: "GET", URL: srv.URL})
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
