// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/store"
)

// maxResponseBytes caps map API response bodies.
const maxResponseBytes = 8 << 20 // 8 MB

// ErrSyncerDisabled is returned when Serve is called without a map URL.
var ErrSyncerDisabled = errors.New("tracking syncer disabled (no map url configured)")

// idList is the map API response shape for both entity endpoints.
type idList struct {
	Data []int64 `json:"data"`
}

// Syncer refreshes the tracked keyspace from the map API.
//
// It runs as a supervised service: an immediate sync at startup, then one
// per SyncInterval. Entries are written with a TTL of twice the interval,
// so entities removed from the map age out even if a replacement sync never
// runs, and the whole keyspace empties if the syncer dies for good.
//
// The fetched lists keep the map API's declaration order; that order is
// what the stream client's subscription truncation preserves.
type Syncer struct {
	cfg    config.TrackingConfig
	store  store.Store
	client *http.Client
	cb     *gobreaker.CircuitBreaker[[]int64]

	mu         sync.RWMutex
	systems    []int64
	characters []int64

	// onChange is invoked (outside the lock) when either list differs from
	// the previous sync. Wired to the stream client's resubscribe.
	onChange func(systems, characters []int64)
}

// NewSyncer creates a tracking syncer. onChange may be nil.
func NewSyncer(cfg config.TrackingConfig, s store.Store, onChange func(systems, characters []int64)) *Syncer {
	cbName := "map-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]int64](gobreaker.Settings{
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

	return &Syncer{
		cfg:      cfg,
		store:    s,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		cb:       cb,
		onChange: onChange,
	}
}

// Serve implements suture.Service.
func (s *Syncer) Serve(ctx context.Context) error {
	if s.cfg.MapURL == "" {
		return ErrSyncerDisabled
	}

	if err := s.syncOnce(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial tracking sync failed")
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				logging.Warn().Err(err).Msg("tracking sync failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Syncer) String() string {
	return "tracking-syncer"
}

// Snapshot returns copies of the current tracked id lists in declaration
// order.
func (s *Syncer) Snapshot() (systems, characters []int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.systems...), append([]int64(nil), s.characters...)
}

// syncOnce fetches both tracked lists and refreshes the store keyspace.
func (s *Syncer) syncOnce(ctx context.Context) error {
	systems, err := s.fetchIDs(ctx, "/api/map/systems")
	if err != nil {
		metrics.TrackingSyncsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("fetch tracked systems: %w", err)
	}

	characters, err := s.fetchIDs(ctx, "/api/map/characters")
	if err != nil {
		metrics.TrackingSyncsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("fetch tracked characters: %w", err)
	}

	ttl := 2 * s.cfg.SyncInterval
	for _, id := range systems {
		if err := s.store.Set(ctx, systemKey(id), present, ttl); err != nil {
			metrics.TrackingSyncsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("store tracked system %d: %w", id, err)
		}
	}
	for _, id := range characters {
		if err := s.store.Set(ctx, characterKey(id), present, ttl); err != nil {
			metrics.TrackingSyncsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("store tracked character %d: %w", id, err)
		}
	}

	s.mu.Lock()
	changed := !equalIDs(s.systems, systems) || !equalIDs(s.characters, characters)
	s.systems = systems
	s.characters = characters
	onChange := s.onChange
	s.mu.Unlock()

	metrics.TrackingSyncsTotal.WithLabelValues("success").Inc()
	metrics.TrackedEntities.WithLabelValues("system").Set(float64(len(systems)))
	metrics.TrackedEntities.WithLabelValues("character").Set(float64(len(characters)))

	logging.Debug().
		Int("systems", len(systems)).
		Int("characters", len(characters)).
		Bool("changed", changed).
		Msg("tracking sync completed")

	if changed && onChange != nil {
		onChange(append([]int64(nil), systems...), append([]int64(nil), characters...))
	}
	return nil
}

// fetchIDs retrieves one tracked id list through the circuit breaker.
func (s *Syncer) fetchIDs(ctx context.Context, path string) ([]int64, error) {
	return s.cb.Execute(func() ([]int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.MapURL+path, nil)
		if err != nil {
			return nil, err
		}
		if s.cfg.MapToken != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.MapToken)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("map api returned HTTP %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}

		var list idList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode map api response: %w", err)
		}
		return list.Data, nil
	})
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
