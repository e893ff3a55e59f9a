package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadUsesDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal("0.0.0.0:8080", cfg.HTTPAddr)
	req.Equal(500, cfg.HistoryLimit)
	req.Equal(5*time.Minute, cfg.EditCooldown)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	req := require.New(t)

	t.Setenv("CHATSYNC_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("CHATSYNC_HISTORY_LIMIT", "50")
	t.Setenv("CHATSYNC_EDIT_COOLDOWN", "1m")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("127.0.0.1:9999", cfg.HTTPAddr)
	req.Equal(50, cfg.HistoryLimit)
	req.Equal(time.Minute, cfg.EditCooldown)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.HTTPAddr = "" }},
		{"zero read timeout", func(c *Config) { c.HTTPReadTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.HTTPWriteTimeout = 0 }},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"zero history limit", func(c *Config) { c.HistoryLimit = 0 }},
		{"zero edit cooldown", func(c *Config) { c.EditCooldown = 0 }},
		{"zero ping interval", func(c *Config) { c.PingInterval = 0 }},
		{"read timeout below ping interval", func(c *Config) { c.ReadTimeout = c.PingInterval / 2 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
