package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Stdout prints each issue's plain-text version instead of delivering it,
// for local development.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewStdout(_ ProviderConfig) *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) GetName() string { return "stdout" }

func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "==> %s to %s\n", msg.ID, msg.To)
	fmt.Fprintf(&b, "From: %s\nSubject: %s\n", msg.From, msg.Subject)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, msg.Headers[k])
	}

	b.WriteString("\n")
	b.WriteString(msg.TextBody)
	fmt.Fprintf(&b, "\n<== html part %d bytes\n", len(msg.HTMLBody))

	// One write per message keeps concurrent fan-out output readable.
	s.mu.Lock()
	_, err := io.WriteString(s.writer, b.String())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

func (s *Stdout) HealthCheck(context.Context) error { return nil }
