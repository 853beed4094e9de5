// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig does not validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty stream url", mutate: func(c *Config) { c.Stream.URL = "" }},
		{name: "non-url stream url", mutate: func(c *Config) { c.Stream.URL = "not a url" }},
		{name: "zero max systems", mutate: func(c *Config) { c.Stream.MaxSystems = 0 }},
		{name: "reconnect max below base", mutate: func(c *Config) {
			c.Stream.ReconnectBase = 10 * time.Second
			c.Stream.ReconnectMax = time.Second
		}},
		{name: "zero dedup ttl", mutate: func(c *Config) { c.Dedup.TTL = 0 }},
		{name: "zero pipeline workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }},
		{name: "unknown store backend", mutate: func(c *Config) { c.Store.Backend = "redis" }},
		{name: "badger backend without path", mutate: func(c *Config) {
			c.Store.Backend = "badger"
			c.Store.Path = ""
		}},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted a bad configuration")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	// An empty CONFIG_PATH and no config file in cwd yields pure defaults.
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Stream.MaxSystems != 1000 {
		t.Errorf("Stream.MaxSystems = %d, want default 1000", cfg.Stream.MaxSystems)
	}
	if cfg.Dedup.TTL != 30*time.Minute {
		t.Errorf("Dedup.TTL = %v, want default 30m", cfg.Dedup.TTL)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want default memory", cfg.Store.Backend)
	}
	if !cfg.Notifications.Enabled {
		t.Error("Notifications.Enabled = false, want default true")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
stream:
  url: wss://stream.test.example/feed
  max_systems: 42
dedup:
  ttl: 10m
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Stream.URL != "wss://stream.test.example/feed" {
		t.Errorf("Stream.URL = %q, want the file's value", cfg.Stream.URL)
	}
	if cfg.Stream.MaxSystems != 42 {
		t.Errorf("Stream.MaxSystems = %d, want 42", cfg.Stream.MaxSystems)
	}
	if cfg.Dedup.TTL != 10*time.Minute {
		t.Errorf("Dedup.TTL = %v, want 10m", cfg.Dedup.TTL)
	}
	// Unset keys fall through to defaults.
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Pipeline.Workers = %d, want default 8", cfg.Pipeline.Workers)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
stream:
  max_systems: 42
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STREAM_MAX_SYSTEMS", "7")
	t.Setenv("LOGGING_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Stream.MaxSystems != 7 {
		t.Errorf("Stream.MaxSystems = %d, want the env override 7", cfg.Stream.MaxSystems)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want the env override warn", cfg.Logging.Level)
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVER_PORT", "0")

	if _, err := Load(); err == nil {
		t.Error("Load accepted an invalid port")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "STREAM_MAX_SYSTEMS", want: "stream.max_systems"},
		{in: "DEDUP_TTL", want: "dedup.ttl"},
		{in: "NOTIFIER_WEBHOOK_URL", want: "notifier.webhook_url"},
		{in: "NOTIFICATIONS_ENABLED", want: "notifications.enabled"},
		// Unrelated process env must not leak into the configuration.
		{in: "PATH", want: ""},
		{in: "HOME", want: ""},
		{in: "STREAMING_SOMETHING", want: ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
