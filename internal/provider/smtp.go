package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTP relays messages to an upstream SMTP server.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	startTLS bool
	timeout  time.Duration
	now      func() time.Time
}

func NewSMTP(cfg ProviderConfig) *SMTP {
	port := cfg.SMTPPort
	if port == 0 {
		port = defaultSMTPPort
	}
	return &SMTP{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		startTLS: cfg.SMTPStartTLS,
		timeout:  cfg.Timeout,
		now:      time.Now,
	}
}

func (s *SMTP) GetName() string { return "smtp" }

func (s *SMTP) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// dial opens a session, upgrading with STARTTLS and authenticating with
// SASL PLAIN when configured.
func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	var c *smtp.Client
	if s.startTLS {
		c, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: s.host})
		if err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		c = smtp.NewClient(conn)
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Send delivers one message in a fresh SMTP session.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	raw, messageID, err := buildMIME(msg, s.now())
	if err != nil {
		return nil, &ProviderError{Provider: "smtp", Message: err.Error(), Permanent: true}
	}
	from, err := envelopeAddress(msg.From)
	if err != nil {
		return nil, &ProviderError{Provider: "smtp", Message: err.Error(), Permanent: true}
	}

	c, err := s.dial(ctx)
	if err != nil {
		return nil, classifySMTPError(fmt.Errorf("connect %s: %w", s.addr(), err))
	}
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return nil, classifySMTPError(fmt.Errorf("MAIL FROM: %w", err))
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return nil, classifySMTPError(fmt.Errorf("RCPT TO: %w", err))
	}

	w, err := c.Data()
	if err != nil {
		return nil, classifySMTPError(fmt.Errorf("DATA: %w", err))
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, classifySMTPError(fmt.Errorf("write data: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, classifySMTPError(fmt.Errorf("end data: %w", err))
	}
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: messageID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck opens and closes a session.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp: health check: %w", err)
	}
	defer c.Close()
	return c.Noop()
}

// classifySMTPError maps 5xx replies to permanent failures.
func classifySMTPError(err error) error {
	pe := &ProviderError{Provider: "smtp", Message: err.Error()}
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		pe.StatusCode = se.Code
		pe.Permanent = se.Code >= 500
	}
	return pe
}
