package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// maxErrorMessage bounds the text kept from a rejection. It ends up in the
// EmailLog row of the failed attempt.
const maxErrorMessage = 500

// ProviderError is a rejection reported by a delivery channel.
type ProviderError struct {
	// Provider is the name of the channel that returned the error.
	Provider string
	// StatusCode is the HTTP status or SMTP reply code, zero if unknown.
	StatusCode int
	Message    string
	// Permanent marks rejections that will not succeed if resent, such as
	// an invalid recipient. The circuit breaker ignores them.
	Permanent bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return e.Provider + ": " + strconv.Itoa(e.StatusCode) + " " + e.Message
	}
	return e.Provider + ": " + e.Message
}

// IsPermanent reports whether err carries a permanent ProviderError.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// ClassifyHTTPError builds a ProviderError from an API response. It returns
// nil for 2xx statuses.
//
// Throttling, timeouts and server errors are transient unless the body
// says the account itself is unusable. Every other 4xx is permanent.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := apiErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    truncate(msg, maxErrorMessage),
	}

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		pe.Permanent = false
	case statusCode >= 500:
		pe.Permanent = mentionsAccountProblem(msg)
	default:
		pe.Permanent = statusCode >= 400
	}
	return pe
}

// apiErrorMessage extracts the human readable part of an error body in the
// shapes used by Resend ({"message"}), Mailgun ({"message"}) and SendGrid
// ({"errors":[{"message"}]}). Anything else is returned trimmed.
func apiErrorMessage(body string) string {
	var parsed struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		msgs := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(body)
}

var accountProblems = []string{
	"invalid api key",
	"api key is invalid",
	"account suspended",
	"account disabled",
	"domain is not verified",
}

func mentionsAccountProblem(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range accountProblems {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
