package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	API        APIConfig               `mapstructure:"api"`
	Database   storage.PoolConfig      `mapstructure:"database"`
	Queue      queue.Config            `mapstructure:"queue"`
	Dispatch   DispatchConfig          `mapstructure:"dispatch"`
	Provider   provider.ProviderConfig `mapstructure:"provider"`
	Archive    archive.Config          `mapstructure:"archive"`
	Reconciler ReconcilerConfig        `mapstructure:"reconciler"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DispatchConfig holds settings injected into the dispatch worker.
type DispatchConfig struct {
	// BaseURL is the public URL of the API, used to build unsubscribe links.
	BaseURL     string        `mapstructure:"base_url"`
	FromAddress string        `mapstructure:"from_address"`
	FromName    string        `mapstructure:"from_name"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// Concurrency bounds in-flight sends per job. Zero means unbounded.
	Concurrency int `mapstructure:"concurrency"`
}

// ReconcilerConfig controls the periodic re-enqueue of orphaned content.
type ReconcilerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Grace    time.Duration `mapstructure:"grace"`
	Limit    int32         `mapstructure:"limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// MetricsConfig holds the worker's ops listener address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// A .env file in the working directory is loaded first when present.
// Environment variables with prefix NEWSLETTER_ override file values.
// For example, NEWSLETTER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("NEWSLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 3000)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	q := queue.DefaultConfig()
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.name", q.Name)
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_db", q.RedisDB)
	v.SetDefault("queue.worker_count", q.WorkerCount)
	v.SetDefault("queue.block_timeout", q.BlockTimeout)
	v.SetDefault("queue.poll_interval", q.PollInterval)
	v.SetDefault("queue.claim_idle", q.ClaimIdle)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.max_retries", q.MaxRetries)

	v.SetDefault("dispatch.base_url", "http://localhost:3000")
	v.SetDefault("dispatch.from_name", "Newsletter Service")
	v.SetDefault("dispatch.send_timeout", 30*time.Second)
	v.SetDefault("dispatch.concurrency", 0)

	v.SetDefault("provider.type", "stdout")
	v.SetDefault("provider.timeout", 30*time.Second)

	v.SetDefault("archive.type", "none")

	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.schedule", "@every 1m")
	v.SetDefault("reconciler.grace", 30*time.Minute)
	v.SetDefault("reconciler.limit", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.addr", ":9091")
}

// Validate checks the fields every process needs.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Dispatch.BaseURL == "" {
		return errors.New("dispatch.base_url is required")
	}
	if c.Dispatch.FromAddress == "" {
		return errors.New("dispatch.from_address is required")
	}
	switch c.Queue.Type {
	case "redis", "sqs":
	default:
		return fmt.Errorf("unknown queue.type %q", c.Queue.Type)
	}
	// A job can sit in flight for claim_idle and then run for up to
	// process_timeout before its content leaves pending.
	if c.Reconciler.Enabled {
		if minGrace := c.Queue.ProcessTimeout + c.Queue.ClaimIdle; c.Reconciler.Grace <= minGrace {
			return fmt.Errorf("reconciler.grace (%s) must exceed queue.process_timeout + queue.claim_idle (%s)",
				c.Reconciler.Grace, minGrace)
		}
	}
	return nil
}

// LoggerConfig converts the logging section for logger.NewFromConfig.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:     c.Logging.Level,
		Output:    c.Logging.Output,
		FilePath:  c.Logging.FilePath,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}
}
