package queue

import "time"

// Config holds configuration for the dispatch queue.
type Config struct {
	// Type selects the queue backend: "redis" (default) or "sqs".
	Type string `mapstructure:"type"`
	// Name is the logical queue name. Redis keys are derived from it.
	Name            string        `mapstructure:"name"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	WorkerCount     int           `mapstructure:"worker_count"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"` // how often due delayed jobs are promoted
	ClaimIdle       time.Duration `mapstructure:"claim_idle"`    // in-flight jobs idle longer than this are reclaimed
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL string `mapstructure:"sqs_dlq_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSEndpoint   string `mapstructure:"sqs_endpoint"`           // optional, e.g. LocalStack
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`          // long poll seconds, default 20
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"` // seconds, default 30
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		Name:            "email",
		RedisAddr:       "localhost:6379",
		RedisDB:         0,
		WorkerCount:     10,
		BlockTimeout:    5 * time.Second,
		PollInterval:    time.Second,
		ClaimIdle:       15 * time.Minute,
		ProcessTimeout:  5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      5,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = d.ClaimIdle
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	// A job still inside its handler must never look stale to the reclaimer.
	if c.ClaimIdle <= c.ProcessTimeout {
		c.ClaimIdle = 2 * c.ProcessTimeout
	}
	return c
}
