// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package enrich augments killmails with priced item data from the
// enrichment API before notification.
//
// The client is defensive plumbing around a remote dependency the pipeline
// must survive without: calls are rate-limited and circuit-broken, and
// every failure is recoverable by contract (the caller dispatches the bare
// killmail instead).
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/killmail"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// maxResponseBytes caps enrichment API response bodies.
const maxResponseBytes = 4 << 20 // 4 MB

// itemsResponse is the enrichment API response shape.
type itemsResponse struct {
	Items      []killmail.Item `json:"items"`
	TotalValue float64         `json:"total_value"`
}

// Client calls the enrichment API.
type Client struct {
	cfg     config.EnrichmentConfig
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*itemsResponse]
}

// NewClient creates an enrichment client.
func NewClient(cfg config.EnrichmentConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	cbName := "enrichment-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*itemsResponse](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(limit, 1),
		cb:      cb,
	}
}

// Enrich returns a copy of the killmail with the priced item list and
// total value filled in. The input is never mutated.
func (c *Client) Enrich(ctx context.Context, k *killmail.Killmail) (*killmail.Killmail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.EnrichmentRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	start := time.Now()
	items, err := c.cb.Execute(func() (*itemsResponse, error) {
		return c.fetchItems(ctx, k.ID)
	})
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EnrichmentRequestsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("enrich killmail %s: %w", k.ID, err)
	}

	metrics.EnrichmentRequestsTotal.WithLabelValues("success").Inc()

	totalValue := items.TotalValue
	if totalValue == 0 {
		totalValue = k.TotalValue
	}
	return k.WithItems(items.Items, totalValue), nil
}

func (c *Client) fetchItems(ctx context.Context, killmailID string) (*itemsResponse, error) {
	url := fmt.Sprintf("%s/api/killmails/%s/items", c.cfg.BaseURL, killmailID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment api returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	var decoded itemsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	return &decoded, nil
}
