// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/killmail"
)

func testEnrichConfig(url string) config.EnrichmentConfig {
	return config.EnrichmentConfig{
		BaseURL:           url,
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 0, // unlimited in tests
	}
}

func TestEnrichFillsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/killmails/555/items" {
			t.Errorf("path = %q, want /api/killmails/555/items", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"type_id": 34, "name": "Tritanium", "quantity": 1000, "value": 5.5},
			},
			"total_value": 2000000,
		})
	}))
	defer server.Close()

	c := NewClient(testEnrichConfig(server.URL))
	k := &killmail.Killmail{ID: "555", SystemID: 30000142}

	enriched, err := c.Enrich(context.Background(), k)
	if err != nil {
		t.Fatalf("Enrich error = %v", err)
	}

	if len(enriched.Items) != 1 || enriched.Items[0].TypeID != 34 {
		t.Errorf("Items = %+v, want the priced item", enriched.Items)
	}
	if enriched.TotalValue != 2000000 {
		t.Errorf("TotalValue = %v, want 2000000", enriched.TotalValue)
	}
	// The input killmail is never mutated.
	if len(k.Items) != 0 || k.TotalValue != 0 {
		t.Errorf("input mutated: items=%d totalValue=%v", len(k.Items), k.TotalValue)
	}
}

func TestEnrichKeepsKnownValueWhenAPIOmitsIt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	}))
	defer server.Close()

	c := NewClient(testEnrichConfig(server.URL))
	k := &killmail.Killmail{ID: "1", TotalValue: 777}

	enriched, err := c.Enrich(context.Background(), k)
	if err != nil {
		t.Fatalf("Enrich error = %v", err)
	}
	if enriched.TotalValue != 777 {
		t.Errorf("TotalValue = %v, want the stream's 777 preserved", enriched.TotalValue)
	}
}

func TestEnrichServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(testEnrichConfig(server.URL))

	if _, err := c.Enrich(context.Background(), &killmail.Killmail{ID: "1"}); err == nil {
		t.Error("Enrich against a failing API succeeded")
	}
}

func TestEnrichRateLimited(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	}))
	defer server.Close()

	cfg := testEnrichConfig(server.URL)
	cfg.RequestsPerSecond = 20
	c := NewClient(cfg)
	ctx := context.Background()

	// Burst of 1; the second call must wait for a token (~50ms at 20/s).
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Enrich(ctx, &killmail.Killmail{ID: "1"}); err != nil {
			t.Fatalf("Enrich error = %v", err)
		}
	}
	elapsed := time.Since(start)

	if calls.Load() != 3 {
		t.Errorf("API saw %d calls, want 3", calls.Load())
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("3 calls at 20/s completed in %v, want rate limiting to spread them", elapsed)
	}
}

func TestEnrichCanceledContext(t *testing.T) {
	c := NewClient(testEnrichConfig("http://127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Enrich(ctx, &killmail.Killmail{ID: "1"}); err == nil {
		t.Error("Enrich with a canceled context succeeded")
	}
}
