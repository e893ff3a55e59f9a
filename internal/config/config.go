// Package config loads service settings from the environment under the
// CHATSYNC prefix, with defaults suitable for a single-room deployment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every tunable of the service.
type Config struct {
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"./chatsync.db"`

	HistoryLimit int           `envconfig:"HISTORY_LIMIT" default:"500"`
	EditCooldown time.Duration `envconfig:"EDIT_COOLDOWN" default:"5m"`

	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"60s"`
}

// Load reads configuration from CHATSYNC_* environment variables on top of
// the defaults, then validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("chatsync", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching the
// environment.
func Default() *Config {
	return &Config{
		HTTPAddr:         "0.0.0.0:8080",
		HTTPReadTimeout:  30 * time.Second,
		HTTPWriteTimeout: 30 * time.Second,
		DatabasePath:     "./chatsync.db",
		HistoryLimit:     500,
		EditCooldown:     5 * time.Minute,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP address cannot be empty")
	}
	if c.HTTPReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTPWriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if c.EditCooldown <= 0 {
		return fmt.Errorf("edit cooldown must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.ReadTimeout <= c.PingInterval {
		return fmt.Errorf("read timeout must exceed the ping interval")
	}
	return nil
}
