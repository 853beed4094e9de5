// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package pipeline runs the per-killmail decision sequence: extract id,
// claim dedup, build the entity, apply the global gate, decide tracking,
// enrich, dispatch.
//
// Each step may short-circuit to a terminal outcome. Outcomes are never
// propagated to the stream client's read loop: a panic anywhere past the
// dedup claim is recovered at the pipeline boundary and recorded as an
// error outcome for that one killmail.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/dedup"
	"github.com/tomtom215/killfeed/internal/killmail"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/tracking"
)

// Dispatcher accepts a killmail for downstream notification. The call
// returning means "accepted for delivery", not "delivered"; it must never
// block on downstream I/O.
type Dispatcher interface {
	Dispatch(k *killmail.Killmail)
}

// Enricher augments a killmail with priced item data. Failure is
// recoverable; the pipeline proceeds with the bare entity.
type Enricher interface {
	Enrich(ctx context.Context, k *killmail.Killmail) (*killmail.Killmail, error)
}

// Orchestrator owns the bounded worker pool and the decision sequence.
type Orchestrator struct {
	cfg        config.PipelineConfig
	gate       *dedup.Gate
	index      *tracking.Index
	enricher   Enricher // nil disables enrichment
	dispatcher Dispatcher

	startedAt time.Time
	enabled   atomic.Bool // global notification gate
	forceNext atomic.Bool // operational escape hatch: next event is relevant

	queue chan []byte

	notified atomic.Int64
	skipped  atomic.Int64
	errored  atomic.Int64
	dropped  atomic.Int64
}

// New creates an orchestrator. enricher may be nil.
func New(cfg config.PipelineConfig, gate *dedup.Gate, index *tracking.Index, enricher Enricher, dispatcher Dispatcher, notificationsEnabled bool) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		gate:       gate,
		index:      index,
		enricher:   enricher,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
		queue:      make(chan []byte, cfg.QueueSize),
	}
	o.enabled.Store(notificationsEnabled)
	return o
}

// Submit hands a raw payload to the worker pool without blocking. Returns
// false when the queue is full; the transport's flow control is the
// primary backpressure, this bound only protects the process under burst.
func (o *Orchestrator) Submit(raw []byte) bool {
	select {
	case o.queue <- raw:
		metrics.PipelineQueueDepth.Set(float64(len(o.queue)))
		return true
	default:
		o.dropped.Add(1)
		metrics.PipelineDroppedTotal.Inc()
		return false
	}
}

// Serve implements suture.Service: runs the worker pool until the context
// is canceled. In-flight killmails run to completion; dispatch is
// fire-and-forget and the dedup gate makes a rare replay harmless.
func (o *Orchestrator) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(o.cfg.Workers)
	for i := 0; i < o.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw := <-o.queue:
					metrics.PipelineQueueDepth.Set(float64(len(o.queue)))
					o.Process(context.WithoutCancel(ctx), raw)
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (o *Orchestrator) String() string {
	return "pipeline"
}

// Process runs the full decision sequence for one raw payload and returns
// the terminal outcome. Exported so the operational surface and tests can
// drive single events.
func (o *Orchestrator) Process(ctx context.Context, raw []byte) Outcome {
	// Step 1: extract the killmail id.
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return o.record(Outcome{Kind: Errored, Reason: ReasonMissingKillmailID})
	}
	id, err := killmail.ExtractID(payload)
	if err != nil {
		return o.record(Outcome{Kind: Errored, Reason: ReasonMissingKillmailID})
	}

	// Step 2: claim the id. A duplicate is a normal skip, not an error.
	if o.gate.Claim(ctx, id) == dedup.Duplicate {
		return o.record(Outcome{Kind: Skipped, Reason: ReasonDuplicate, KillmailID: id})
	}

	// Steps 3-7 are crash-isolated: a panic becomes an error outcome for
	// this killmail and nothing else.
	return o.runProtected(ctx, raw, payload, id)
}

func (o *Orchestrator) runProtected(ctx context.Context, raw []byte, payload map[string]any, id string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("killmail_id", id).
				Interface("panic", r).
				Msg("pipeline crashed processing killmail")
			outcome = o.record(Outcome{Kind: Errored, Reason: ReasonPipelineCrash, KillmailID: id})
		}
	}()

	// Step 3: build the immutable event entity.
	k, err := killmail.FromDecoded(raw, payload)
	if err != nil {
		reason := ReasonMissingSystemID
		if errors.Is(err, killmail.ErrInvalidSystemID) {
			reason = ReasonInvalidSystemID
		}
		return o.record(Outcome{Kind: Errored, Reason: reason, KillmailID: id})
	}

	// Step 4: global gate.
	if !o.enabled.Load() {
		return o.record(Outcome{Kind: Skipped, Reason: ReasonNotificationsDisabled, KillmailID: id})
	}

	// Step 5: tracking decision. The force-next escape hatch is consumed
	// after, and independently of, the real decision so it can never
	// distort it.
	if !o.relevant(ctx, k) && !o.forceNext.CompareAndSwap(true, false) {
		return o.record(Outcome{Kind: Skipped, Reason: ReasonNotTracked, KillmailID: id})
	}

	// Step 6: enrichment, skipped during the startup quiet period so a
	// backlog replay cannot flood the enrichment API.
	if o.enricher != nil && !o.inQuietPeriod() {
		enriched, err := o.enricher.Enrich(ctx, k)
		if err != nil {
			logging.Warn().Err(err).Str("killmail_id", id).Msg("enrichment failed, dispatching bare killmail")
		} else {
			k = enriched
		}
	}

	// Step 7: dispatch. Fire-and-forget; returning means accepted.
	o.dispatcher.Dispatch(k)
	return o.record(Outcome{Kind: Notified, KillmailID: id})
}

// relevant applies the tracking decision: tracked system, tracked victim,
// or lazily any tracked attacker (first match wins).
func (o *Orchestrator) relevant(ctx context.Context, k *killmail.Killmail) bool {
	if o.index.SystemTracked(ctx, k.SystemID) {
		return true
	}
	if o.index.CharacterTracked(ctx, k.Victim.CharacterID) {
		return true
	}
	for _, attacker := range k.Attackers {
		if o.index.CharacterTracked(ctx, attacker.CharacterID) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) inQuietPeriod() bool {
	return o.cfg.QuietPeriod > 0 && time.Since(o.startedAt) < o.cfg.QuietPeriod
}

// record counts and logs a terminal outcome.
func (o *Orchestrator) record(outcome Outcome) Outcome {
	metrics.PipelineOutcomesTotal.WithLabelValues(outcome.Kind.String(), string(outcome.Reason)).Inc()

	switch outcome.Kind {
	case Notified:
		o.notified.Add(1)
		logging.Info().Str("killmail_id", outcome.KillmailID).Msg("killmail notified")
	case Skipped:
		o.skipped.Add(1)
		logging.Debug().Str("killmail_id", outcome.KillmailID).Str("reason", string(outcome.Reason)).Msg("killmail skipped")
	case Errored:
		o.errored.Add(1)
		logging.Warn().Str("killmail_id", outcome.KillmailID).Str("reason", string(outcome.Reason)).Msg("killmail processing failed")
	}
	return outcome
}

// SetNotificationsEnabled flips the global notification gate.
func (o *Orchestrator) SetNotificationsEnabled(enabled bool) {
	o.enabled.Store(enabled)
}

// NotificationsEnabled reports the global notification gate.
func (o *Orchestrator) NotificationsEnabled() bool {
	return o.enabled.Load()
}

// ForceNext marks the next processed killmail as relevant regardless of
// tracking state. Operational escape hatch for notification testing.
func (o *Orchestrator) ForceNext() {
	o.forceNext.Store(true)
}

// Counters returns a snapshot of outcome totals.
func (o *Orchestrator) Counters() Counters {
	return Counters{
		Notified: o.notified.Load(),
		Skipped:  o.skipped.Load(),
		Errored:  o.errored.Load(),
		Dropped:  o.dropped.Load(),
	}
}
