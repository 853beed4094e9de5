// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/killfeed/internal/store"
)

func TestIndexSystemTracked(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	ctx := context.Background()
	idx := NewIndex(s)

	if idx.SystemTracked(ctx, 30000142) {
		t.Error("absent system reported tracked")
	}

	if err := s.Set(ctx, systemKey(30000142), present, 0); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	if !idx.SystemTracked(ctx, 30000142) {
		t.Error("stored system reported untracked")
	}
	if idx.SystemTracked(ctx, 30000143) {
		t.Error("different system reported tracked")
	}
}

func TestIndexCharacterTracked(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	ctx := context.Background()
	idx := NewIndex(s)

	if err := s.Set(ctx, characterKey(90000001), present, 0); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	if !idx.CharacterTracked(ctx, 90000001) {
		t.Error("stored character reported untracked")
	}
	if idx.CharacterTracked(ctx, 90000002) {
		t.Error("absent character reported tracked")
	}

	// Zero means "no character on this killmail", never a lookup.
	if idx.CharacterTracked(ctx, 0) {
		t.Error("zero character id reported tracked")
	}
}

func TestIndexEntryExpiry(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	ctx := context.Background()
	idx := NewIndex(s)

	if err := s.Set(ctx, systemKey(1), present, 20*time.Millisecond); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if idx.SystemTracked(ctx, 1) {
		t.Error("expired entry reported tracked")
	}
}

// erroringStore fails every Get to verify lookups degrade to untracked.
type erroringStore struct {
	store.Store
}

func (e *erroringStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func TestIndexLookupErrorReadsUntracked(t *testing.T) {
	idx := NewIndex(&erroringStore{})
	ctx := context.Background()

	if idx.SystemTracked(ctx, 1) {
		t.Error("store error reported tracked")
	}
	if idx.CharacterTracked(ctx, 1) {
		t.Error("store error reported tracked")
	}
}
