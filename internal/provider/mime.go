package provider

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// buildMIME renders msg as a multipart/alternative RFC 5322 message and
// returns it with the generated Message-ID (without angle brackets).
func buildMIME(msg *Message, now time.Time) ([]byte, string, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, "", fmt.Errorf("mime: parse from %q: %w", msg.From, err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, "", fmt.Errorf("mime: parse to %q: %w", msg.To, err)
	}

	messageID := newMessageID(msg.ID, from.Address)

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	h.SetMessageID(messageID)
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("mime: create writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("mime: create inline: %w", err)
	}
	if msg.TextBody != "" {
		if err := writeInlinePart(iw, "text/plain", msg.TextBody); err != nil {
			return nil, "", err
		}
	}
	if msg.HTMLBody != "" {
		if err := writeInlinePart(iw, "text/html", msg.HTMLBody); err != nil {
			return nil, "", err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, "", fmt.Errorf("mime: close inline: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("mime: close writer: %w", err)
	}

	return buf.Bytes(), messageID, nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("mime: create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("mime: write %s part: %w", contentType, err)
	}
	return w.Close()
}

func newMessageID(id, fromAddr string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(fromAddr, '@'); at >= 0 && at < len(fromAddr)-1 {
		domain = fromAddr[at+1:]
	}
	local := uuid.NewString()
	if id != "" {
		local = id + "." + local
	}
	return local + "@" + domain
}

// envelopeAddress returns the bare address of an RFC 5322 address string.
func envelopeAddress(s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", s, err)
	}
	return addr.Address, nil
}
