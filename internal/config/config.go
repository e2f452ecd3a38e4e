package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	Redis struct {
		Addr     string `split_words:"true" default:"localhost:6379"`
		Password string `split_words:"true"`
		DB       int    `split_words:"true" default:"0"`
	}

	KeyPrefix          string        `envconfig:"KEY_PREFIX" default:"segmentd:"`
	WorkerID           string        `envconfig:"WORKER_ID"`
	LeaseDuration      time.Duration `envconfig:"LEASE_DURATION" default:"60s"`
	CompletionTTL      time.Duration `envconfig:"COMPLETION_TTL" default:"168h"`
	SubscriberPoolSize int           `envconfig:"SUBSCRIBER_POOL_SIZE" default:"5"`
	MonitorInterval    time.Duration `envconfig:"MONITOR_INTERVAL" default:"30s"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Journal struct {
		Enabled bool   `split_words:"true" default:"true"`
		Path    string `split_words:"true" default:"segment_events.db"`
	}

	Notifier struct {
		WebhookURL string `split_words:"true"`
	}

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"segment_coordinator"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8090"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"60s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
