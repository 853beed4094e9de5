// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package metrics exposes Prometheus collectors for the killmail pipeline.
//
// Collectors are registered at package load via promauto and scraped through
// the operational HTTP surface at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream Client Metrics

	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connected",
			Help: "Whether the killmail stream connection is active (1) or not (0)",
		},
	)

	StreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_reconnects_total",
			Help: "Total number of stream reconnect attempts",
		},
	)

	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_total",
			Help: "Total number of inbound stream messages",
		},
		[]string{"result"}, // decoded, malformed, dropped
	)

	StreamSubscriptionTruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_subscription_truncations_total",
			Help: "Total number of subscription entity lists truncated to the configured maximum",
		},
		[]string{"entity"}, // system, character
	)

	StreamHeartbeatTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_heartbeat_timeouts_total",
			Help: "Total number of connections failed for missing server activity",
		},
	)

	// Pipeline Metrics

	PipelineOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_outcomes_total",
			Help: "Terminal pipeline outcomes per killmail",
		},
		[]string{"outcome", "reason"}, // outcome: notified, skipped, error
	)

	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current number of killmails waiting for a pipeline worker",
		},
	)

	PipelineDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_dropped_total",
			Help: "Total number of killmails dropped because the pipeline queue was full",
		},
	)

	// Deduplication Metrics

	DedupClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_claims_total",
			Help: "Total number of deduplication claims",
		},
		[]string{"result"}, // claimed, duplicate, error
	)

	// Tracking Metrics

	TrackingSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_syncs_total",
			Help: "Total number of tracked-entity synchronization runs",
		},
		[]string{"result"}, // success, failure
	)

	TrackedEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracked_entities",
			Help: "Current number of tracked entities by kind",
		},
		[]string{"kind"}, // system, character
	)

	// Enrichment Metrics

	EnrichmentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_requests_total",
			Help: "Total number of enrichment requests",
		},
		[]string{"result"}, // success, failure, rejected
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Duration of enrichment calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Dispatch Metrics

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Current number of notifications waiting for a dispatch worker",
		},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_total",
			Help: "Total number of notification dispatch attempts",
		},
		[]string{"result"}, // accepted, dropped, delivered, failed
	)

	// Circuit Breaker Metrics (enrichment and tracking sync clients)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Store Metrics

	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"operation", "outcome"}, // operation: get, set, setnx, delete
	)
)
