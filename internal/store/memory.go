// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/killfeed/internal/metrics"
)

// cleanupInterval is how often the janitor removes expired entries.
const cleanupInterval = 5 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a thread-safe in-memory Store with TTL support.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stop    chan struct{}
	closed  bool
}

// NewMemory creates an in-memory store. A background janitor removes
// expired entries every few minutes; reads also expire lazily.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok {
		metrics.StoreOperationsTotal.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		delete(m.entries, key)
		metrics.StoreOperationsTotal.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}

	metrics.StoreOperationsTotal.WithLabelValues("get", "hit").Inc()
	return entry.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.entries[key] = newEntry(value, ttl)
	metrics.StoreOperationsTotal.WithLabelValues("set", "success").Inc()
	return nil
}

// SetNX implements Store. The check and the insert run under one lock
// section, so concurrent callers for the same absent key see exactly one
// true result.
func (m *Memory) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	if existing, ok := m.entries[key]; ok && !existing.expired(time.Now()) {
		metrics.StoreOperationsTotal.WithLabelValues("setnx", "exists").Inc()
		return false, nil
	}

	m.entries[key] = newEntry(value, ttl)
	metrics.StoreOperationsTotal.WithLabelValues("setnx", "stored").Inc()
	return true, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.entries, key)
	metrics.StoreOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// DeletePrefix implements Store.
func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.entries = nil
	close(m.stop)
	return nil
}

// Len returns the current number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for _, entry := range m.entries {
		if !entry.expired(now) {
			count++
		}
	}
	return count
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	now := time.Now()
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
}

func newEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}
