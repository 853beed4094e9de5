// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package dedup implements the at-most-once gate in front of the pipeline.
//
// Each killmail id may be claimed once per TTL window. The claim rides on
// the store's atomic SetNX, so two copies of the same killmail arriving
// near-simultaneously yield exactly one Claimed result. Entries expire
// naturally; a post-expiry replay is processed as a new event.
package dedup

import (
	"context"
	"time"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/store"
)

// keyPrefix namespaces dedup entries in the shared store.
const keyPrefix = "dedup:"

// sentinel is the marker value stored per claimed id. Only presence matters.
var sentinel = []byte{1}

// Result is the outcome of a claim.
type Result int

const (
	// Claimed means this caller won the id; process the event.
	Claimed Result = iota

	// Duplicate means the id was already claimed within the TTL window.
	Duplicate
)

// String implements fmt.Stringer.
func (r Result) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "duplicate"
}

// Gate guards the pipeline against reprocessing a killmail id.
type Gate struct {
	store store.Store
	ttl   time.Duration
}

// NewGate creates a gate over the given store. Claims expire after ttl.
func NewGate(s store.Store, ttl time.Duration) *Gate {
	return &Gate{store: s, ttl: ttl}
}

// Claim records killmail id ownership for the TTL window.
//
// Store failures claim rather than reject: a flaky disk must not silence
// notifications, and the occasional duplicate notification is the cheaper
// failure mode than a lost one.
func (g *Gate) Claim(ctx context.Context, killmailID string) Result {
	stored, err := g.store.SetNX(ctx, keyPrefix+killmailID, sentinel, g.ttl)
	if err != nil {
		metrics.DedupClaimsTotal.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("killmail_id", killmailID).Msg("dedup claim failed, processing anyway")
		return Claimed
	}

	if !stored {
		metrics.DedupClaimsTotal.WithLabelValues("duplicate").Inc()
		return Duplicate
	}

	metrics.DedupClaimsTotal.WithLabelValues("claimed").Inc()
	return Claimed
}

// TTL returns the configured claim window.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}
