package config

import (
	"time"

	"github.com/chanwatch/chanwatch/internal/infra/redisq"
	"github.com/chanwatch/chanwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig    `yaml:"server"`
	Logging    LoggingConfig   `yaml:"logging"`
	Database   postgres.Config `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	Poller     PollerConfig    `yaml:"poller"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Retry      RetryConfig     `yaml:"retry"`
	ContentAPI EndpointConfig  `yaml:"content_api"`
	Summarizer EndpointConfig  `yaml:"summarizer"`
	Push       EndpointConfig  `yaml:"push"`
	Chat       ChatConfig      `yaml:"chat"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RedisConfig enables the durable push-retry store.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Conn    redisq.Config `yaml:",inline"`
}

// PollerConfig holds feed polling settings.
type PollerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	UserAgent     string        `yaml:"user_agent"`
	BackfillCount int           `yaml:"backfill_count"`
}

// PipelineConfig holds summarization settings.
type PipelineConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`

	// NoCaptionsTerminal makes a "no captions" rejection immediately
	// terminal instead of consuming retry budget.
	NoCaptionsTerminal bool `yaml:"no_captions_terminal"`
}

// RetryConfig holds push retry queue settings.
type RetryConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// EndpointConfig holds settings for an external HTTP collaborator.
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig holds team-chat webhook settings.
type ChatConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}
