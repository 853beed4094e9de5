// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package store provides the TTL key-value store backing deduplication and
// the tracked-entity index.
//
// Two backends are available: an in-memory map (default, entries lost on
// restart) and a BadgerDB-backed store (entries survive restarts, useful so
// a process bounce within the dedup window does not re-notify). Both expose
// the same atomic operations; callers never lock around them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is a key-value store with per-entry TTL.
//
// All operations are atomic with respect to concurrent callers. SetNX is
// the check-and-set primitive the deduplication gate builds on: exactly one
// of N concurrent SetNX calls for an absent key reports true.
type Store interface {
	// Get returns the value for key and whether a live entry exists.
	// An expired or missing entry yields (nil, false, nil), not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any existing entry.
	// A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value under key only if no live entry exists.
	// Returns true when the entry was stored by this call.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes the entry for key. Removing an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}
