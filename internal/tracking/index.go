// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package tracking answers "is this system or character tracked?" against
// the shared store, and keeps the tracked sets fresh via a background
// syncer against the map API.
//
// Index reads are pure cache lookups: no network round trip ever happens
// on the pipeline's hot path, and an absent key simply means untracked.
package tracking

import (
	"context"
	"strconv"

	"github.com/tomtom215/killfeed/internal/store"
)

// Store key prefixes for the tracked keyspace.
const (
	systemKeyPrefix    = "tracked:system:"
	characterKeyPrefix = "tracked:character:"
)

// present is the marker value for a tracked entity. Only presence matters.
var present = []byte{1}

// Index is the read side of the tracked-entity cache.
type Index struct {
	store store.Store
}

// NewIndex creates an index over the given store.
func NewIndex(s store.Store) *Index {
	return &Index{store: s}
}

// SystemTracked reports whether the system is currently tracked.
// Lookup failures read as untracked; the index is an eventually-consistent
// oracle, not a source of errors.
func (i *Index) SystemTracked(ctx context.Context, systemID int64) bool {
	_, ok, err := i.store.Get(ctx, systemKey(systemID))
	return err == nil && ok
}

// CharacterTracked reports whether the character is currently tracked.
func (i *Index) CharacterTracked(ctx context.Context, characterID int64) bool {
	if characterID == 0 {
		return false
	}
	_, ok, err := i.store.Get(ctx, characterKey(characterID))
	return err == nil && ok
}

func systemKey(id int64) string {
	return systemKeyPrefix + strconv.FormatInt(id, 10)
}

func characterKey(id int64) string {
	return characterKeyPrefix + strconv.FormatInt(id, 10)
}
