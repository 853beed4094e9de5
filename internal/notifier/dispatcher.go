// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package notifier delivers killmail notifications to the downstream
// webhook.
//
// Dispatch is fire-and-forget by contract: the pipeline enqueues and moves
// on, a bounded worker pool does the HTTP delivery, and downstream
// failures are logged and counted but never surface to the caller. The
// explicit queue makes the backpressure behavior testable instead of
// implicit.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/killmail"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Entitlements decides the notification richness per dispatch. The
// license service backing it is an external collaborator; here it is a
// boolean oracle and nothing more.
type Entitlements interface {
	RichNotifications() bool
}

// StaticEntitlements is a config-backed Entitlements implementation.
type StaticEntitlements bool

// RichNotifications implements Entitlements.
func (s StaticEntitlements) RichNotifications() bool {
	return bool(s)
}

// webhookPayload is the outbound message shape (Discord-compatible).
type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Dispatcher is the bounded-queue webhook notifier.
type Dispatcher struct {
	cfg          config.NotifierConfig
	entitlements Entitlements
	client       *http.Client
	queue        chan *killmail.Killmail
}

// NewDispatcher creates a dispatcher. entitlements may be nil, which
// disables rich embeds.
func NewDispatcher(cfg config.NotifierConfig, entitlements Entitlements) *Dispatcher {
	if entitlements == nil {
		entitlements = StaticEntitlements(false)
	}
	return &Dispatcher{
		cfg:          cfg,
		entitlements: entitlements,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		queue:        make(chan *killmail.Killmail, cfg.QueueSize),
	}
}

// Dispatch accepts a killmail for delivery without blocking. A full queue
// drops the notification; the pipeline's at-most-once guarantee is about
// processing, delivery is best-effort by design.
func (d *Dispatcher) Dispatch(k *killmail.Killmail) {
	select {
	case d.queue <- k:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		metrics.DispatchTotal.WithLabelValues("accepted").Inc()
	default:
		metrics.DispatchTotal.WithLabelValues("dropped").Inc()
		logging.Warn().Str("killmail_id", k.ID).Msg("dispatch queue full, notification dropped")
	}
}

// Serve implements suture.Service: runs the delivery workers until the
// context is canceled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case k := <-d.queue:
					metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
					d.deliver(context.WithoutCancel(ctx), k)
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (d *Dispatcher) String() string {
	return "notification-dispatcher"
}

// deliver posts one notification. Failures are terminal for this
// notification; downstream retry policy is the webhook platform's concern.
func (d *Dispatcher) deliver(ctx context.Context, k *killmail.Killmail) {
	if d.cfg.WebhookURL == "" {
		metrics.DispatchTotal.WithLabelValues("delivered").Inc()
		return
	}

	payload := d.buildPayload(k)
	body, err := json.Marshal(payload)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("killmail_id", k.ID).Msg("failed to encode notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("killmail_id", k.ID).Msg("failed to build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Str("killmail_id", k.ID).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		logging.Warn().Int("status", resp.StatusCode).Str("killmail_id", k.ID).Msg("notification rejected downstream")
		return
	}

	metrics.DispatchTotal.WithLabelValues("delivered").Inc()
	logging.Debug().Str("killmail_id", k.ID).Msg("notification delivered")
}

// buildPayload renders the webhook message. Rich embeds are gated on the
// entitlements decision; the plain form is a single content line.
func (d *Dispatcher) buildPayload(k *killmail.Killmail) webhookPayload {
	title := fmt.Sprintf("Kill %s in system %d", k.ID, k.SystemID)

	if !d.cfg.RichEmbeds || !d.entitlements.RichNotifications() {
		return webhookPayload{Content: title}
	}

	fields := []embedField{
		{Name: "System", Value: fmt.Sprintf("%d", k.SystemID), Inline: true},
	}
	if k.Victim.CharacterID != 0 {
		fields = append(fields, embedField{Name: "Victim", Value: fmt.Sprintf("%d", k.Victim.CharacterID), Inline: true})
	}
	if fb := k.FinalBlow(); fb.CharacterID != 0 {
		fields = append(fields, embedField{Name: "Final blow", Value: fmt.Sprintf("%d", fb.CharacterID), Inline: true})
	}
	if k.TotalValue > 0 {
		fields = append(fields, embedField{Name: "Value", Value: fmt.Sprintf("%.2f ISK", k.TotalValue), Inline: true})
	}
	if len(k.Items) > 0 {
		fields = append(fields, embedField{Name: "Items", Value: fmt.Sprintf("%d priced", len(k.Items)), Inline: true})
	}

	e := embed{
		Title:  title,
		Fields: fields,
	}
	if !k.OccurredAt.IsZero() {
		e.Timestamp = k.OccurredAt.Format(time.RFC3339)
	}

	return webhookPayload{Embeds: []embed{e}}
}
