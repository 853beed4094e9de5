// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package config loads and validates the Killfeed process configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables (highest priority). See koanf.go for the
// loading mechanics.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Killfeed process.
type Config struct {
	Stream        StreamConfig        `koanf:"stream" validate:"required"`
	Dedup         DedupConfig         `koanf:"dedup"`
	Tracking      TrackingConfig      `koanf:"tracking"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Enrichment    EnrichmentConfig    `koanf:"enrichment"`
	Notifier      NotifierConfig      `koanf:"notifier"`
	Store         StoreConfig         `koanf:"store"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// StreamConfig configures the killmail stream client.
type StreamConfig struct {
	// URL is the websocket endpoint of the killmail stream.
	URL string `koanf:"url" validate:"required,url"`

	// Token authenticates the connection during the handshake.
	Token string `koanf:"token"`

	// MaxSystems bounds the subscription's system id list.
	MaxSystems int `koanf:"max_systems" validate:"gt=0"`

	// MaxCharacters bounds the subscription's character id list.
	MaxCharacters int `koanf:"max_characters" validate:"gt=0"`

	// ReconnectBase is the first reconnect delay; doubles per attempt.
	ReconnectBase time.Duration `koanf:"reconnect_base" validate:"gt=0"`

	// ReconnectMax caps the reconnect delay.
	ReconnectMax time.Duration `koanf:"reconnect_max" validate:"gtefield=ReconnectBase"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`

	// AuthTimeout bounds the wait for the auth acknowledgement.
	AuthTimeout time.Duration `koanf:"auth_timeout" validate:"gt=0"`

	// SubscribeTimeout bounds the wait for the subscription acknowledgement.
	SubscribeTimeout time.Duration `koanf:"subscribe_timeout" validate:"gt=0"`

	// PingInterval is how often client ping control frames are sent.
	PingInterval time.Duration `koanf:"ping_interval" validate:"gt=0"`

	// HeartbeatWindow fails the connection when no server activity is
	// observed for this long.
	HeartbeatWindow time.Duration `koanf:"heartbeat_window" validate:"gt=0"`
}

// DedupConfig configures the deduplication gate.
type DedupConfig struct {
	// TTL is the window during which a killmail id counts as already seen.
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

// TrackingConfig configures the tracked-entity index and its syncer.
type TrackingConfig struct {
	// MapURL is the base URL of the map API the syncer pulls tracked
	// systems and characters from. Empty disables the syncer (the index
	// then serves whatever the store already holds).
	MapURL string `koanf:"map_url" validate:"omitempty,url"`

	// MapToken authenticates syncer requests.
	MapToken string `koanf:"map_token"`

	// SyncInterval is how often the tracked sets are refreshed.
	SyncInterval time.Duration `koanf:"sync_interval" validate:"gt=0"`

	// RequestTimeout bounds a single sync request.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// PipelineConfig configures the per-event decision pipeline.
type PipelineConfig struct {
	// Workers is the number of concurrent pipeline workers.
	Workers int `koanf:"workers" validate:"gt=0"`

	// QueueSize bounds the number of killmails waiting for a worker.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// QuietPeriod suppresses enrichment for this long after start,
	// so reconnect-triggered backlog replay cannot flood the enricher.
	QuietPeriod time.Duration `koanf:"quiet_period" validate:"gte=0"`
}

// EnrichmentConfig configures the priced-item enrichment client.
type EnrichmentConfig struct {
	// BaseURL is the enrichment API base URL. Empty disables enrichment.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// RequestTimeout bounds a single enrichment call.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	// RequestsPerSecond rate-limits enrichment calls. 0 means unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
}

// NotifierConfig configures the notification dispatcher.
type NotifierConfig struct {
	// WebhookURL is the downstream webhook endpoint.
	WebhookURL string `koanf:"webhook_url" validate:"omitempty,url"`

	// Workers is the number of concurrent delivery workers.
	Workers int `koanf:"workers" validate:"gt=0"`

	// QueueSize bounds the number of notifications waiting for delivery.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// RequestTimeout bounds a single webhook delivery.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	// RichEmbeds enables the richer notification payload. Mirrors the
	// entitlement decision the dispatcher consults per notification.
	RichEmbeds bool `koanf:"rich_embeds"`
}

// StoreConfig configures the TTL key-value store backing dedup and tracking.
type StoreConfig struct {
	// Backend selects the store implementation: memory or badger.
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// Path is the BadgerDB directory (badger backend only).
	Path string `koanf:"path" validate:"required_if=Backend badger"`
}

// ServerConfig configures the operational HTTP surface.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// NotificationsConfig holds the global notification gate.
type NotificationsConfig struct {
	// Enabled is the initial state of the global notification gate.
	// The gate can be flipped at runtime via the operational surface.
	Enabled bool `koanf:"enabled"`
}

// Validate checks configuration invariants before the process starts.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
