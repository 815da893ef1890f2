package provider

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func TestBuildMIME_RoundTrip(t *testing.T) {
	msg := testMessage()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	raw, messageID, err := buildMIME(msg, now)
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	if !strings.HasPrefix(messageID, "content-1-sub-2.") || !strings.HasSuffix(messageID, "@example.com") {
		t.Errorf("messageID = %q", messageID)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}

	subject, err := mr.Header.Subject()
	if err != nil || subject != msg.Subject {
		t.Errorf("Subject = %q (err=%v)", subject, err)
	}
	if got := mr.Header.Get("List-Unsubscribe"); got != msg.Headers["List-Unsubscribe"] {
		t.Errorf("List-Unsubscribe = %q", got)
	}
	date, err := mr.Header.Date()
	if err != nil || !date.Equal(now) {
		t.Errorf("Date = %v (err=%v)", date, err)
	}

	parts := map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, _ := io.ReadAll(p.Body)
		// Quoted-printable bodies come back with CRLF line endings.
		parts[ct] = strings.ReplaceAll(string(body), "\r\n", "\n")
	}

	if parts["text/plain"] != msg.TextBody {
		t.Errorf("text part = %q", parts["text/plain"])
	}
	if parts["text/html"] != msg.HTMLBody {
		t.Errorf("html part = %q", parts["text/html"])
	}
}

func TestBuildMIME_InvalidAddress(t *testing.T) {
	msg := testMessage()
	msg.To = "not-an-address"
	if _, _, err := buildMIME(msg, time.Now()); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestNewMessageID(t *testing.T) {
	a := newMessageID("content-1-sub-1", "news@example.com")
	b := newMessageID("content-1-sub-1", "news@example.com")
	if a == b {
		t.Error("expected unique message ids")
	}
	if !strings.HasSuffix(newMessageID("", "bad"), "@localhost") {
		t.Error("expected localhost fallback domain")
	}
}
