package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderConfig selects and configures the worker's delivery channel.
// Only the fields of the chosen Type are read.
type ProviderConfig struct {
	// Type is one of SupportedTypes().
	Type string `mapstructure:"type"`

	APIKey string `mapstructure:"api_key"`
	// Endpoint overrides the API base URL; the file channel uses it as its
	// output directory.
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Domain   string        `mapstructure:"domain"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPStartTLS bool   `mapstructure:"smtp_starttls"`

	// Zero breaker values fall back to the defaults in breaker.go.
	BreakerMaxRequests      uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval         time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailureThreshold uint32        `mapstructure:"breaker_failure_threshold"`
}

const (
	defaultTimeout  = 30 * time.Second
	defaultSMTPPort = 587
)

// requiredFields lists, per channel, the config keys that must be set.
var requiredFields = map[string][]string{
	"resend":   {"api_key"},
	"sendgrid": {"api_key"},
	"mailgun":  {"api_key", "domain"},
	"smtp":     {"smtp_host"},
	"stdout":   nil,
	"file":     nil,
}

func (c *ProviderConfig) field(key string) string {
	switch key {
	case "api_key":
		return c.APIKey
	case "domain":
		return c.Domain
	case "smtp_host":
		return c.SMTPHost
	}
	return ""
}

// Validate reports every missing key of the selected channel at once and
// fills in the timeout and SMTP port defaults.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}
	required, ok := requiredFields[c.Type]
	if !ok {
		return fmt.Errorf("unknown provider type %q", c.Type)
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(c.field(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", c.Type, strings.Join(missing, ", "))
	}
	if c.Type == "smtp" && c.SMTPUsername != "" && c.SMTPPassword == "" {
		return errors.New("smtp: smtp_password is required when smtp_username is set")
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Type == "smtp" && c.SMTPPort == 0 {
		c.SMTPPort = defaultSMTPPort
	}
	return nil
}
