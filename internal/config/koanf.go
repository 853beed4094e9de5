// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/killfeed/config.yaml",
	"/etc/killfeed/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first and are overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:              "wss://killstream.example.com/stream",
			Token:            "",
			MaxSystems:       1000,
			MaxCharacters:    500,
			ReconnectBase:    1 * time.Second,
			ReconnectMax:     32 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			AuthTimeout:      10 * time.Second,
			SubscribeTimeout: 10 * time.Second,
			PingInterval:     30 * time.Second,
			HeartbeatWindow:  60 * time.Second,
		},
		Dedup: DedupConfig{
			TTL: 30 * time.Minute,
		},
		Tracking: TrackingConfig{
			MapURL:         "",
			MapToken:       "",
			SyncInterval:   1 * time.Minute,
			RequestTimeout: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:     8,
			QueueSize:   256,
			QuietPeriod: 30 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			BaseURL:           "",
			RequestTimeout:    10 * time.Second,
			RequestsPerSecond: 10,
		},
		Notifier: NotifierConfig{
			WebhookURL:     "",
			Workers:        2,
			QueueSize:      128,
			RequestTimeout: 10 * time.Second,
			RichEmbeds:     false,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "/data/killfeed",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8642,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults. Environment variable names map to
// koanf paths by lowercasing and splitting on the first underscore group:
// STREAM_MAX_SYSTEMS -> stream.max_systems.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// knownSections are the top-level config keys an environment variable may
// address. Anything else is ignored so unrelated process env (PATH, HOME)
// does not leak into the configuration.
var knownSections = []string{
	"stream", "dedup", "tracking", "pipeline", "enrichment",
	"notifier", "store", "server", "logging", "notifications",
}

// envTransformFunc maps environment variable names to koanf paths:
// STREAM_MAX_SYSTEMS -> stream.max_systems, DEDUP_TTL -> dedup.ttl.
// Returns "" for variables outside the known sections.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)
	for _, section := range knownSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}
	return ""
}
