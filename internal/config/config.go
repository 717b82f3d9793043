// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`

	// TherapyServiceURL is the conversational-response service endpoint.
	// Empty means the service is not configured; sessions then run on the
	// local fallback prompts.
	TherapyServiceURL string        `env:"THERAPY_SERVICE_URL"`
	TherapyTimeout    time.Duration `env:"THERAPY_REQUEST_TIMEOUT" envDefault:"0s"`

	// FeedbackSinkURL receives end-of-session feedback. Empty disables it.
	FeedbackSinkURL string        `env:"FEEDBACK_SINK_URL"`
	FeedbackTimeout time.Duration `env:"FEEDBACK_REQUEST_TIMEOUT" envDefault:"10s"`

	AudioTrackURL string        `env:"AUDIO_TRACK_URL" envDefault:"/audio/ambient.mp3"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"60m"`

	ConversationLog ConversationLogConfig `envPrefix:"CONVERSATION_LOG_"`
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"true"`
	Dir       string `env:"DIR" envDefault:"./data/logs/conversations"`
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty when logging is enabled")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
