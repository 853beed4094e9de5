// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func openTestBadger(t *testing.T) *Badger {
	t.Helper()

	b, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger error = %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close()
	})
	return b
}

func TestBadgerGetSet(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get(absent) error = %v", err)
	}
	if ok {
		t.Fatal("Get(absent) reported a live entry")
	}

	if err := b.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	got, ok, err := b.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if !ok {
		t.Fatal("Get reported no entry after Set")
	}
	if string(got) != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}
}

func TestBadgerSetNX(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	stored, err := b.SetNX(ctx, "once", []byte("first"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX error = %v", err)
	}
	if !stored {
		t.Fatal("first SetNX did not store")
	}

	stored, err = b.SetNX(ctx, "once", []byte("second"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX error = %v", err)
	}
	if stored {
		t.Error("second SetNX stored over a live entry")
	}

	got, _, _ := b.Get(ctx, "once")
	if string(got) != "first" {
		t.Errorf("value = %q, want the first writer's %q", got, "first")
	}
}

func TestBadgerSetNXConcurrent(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	// Overlapping transactions for the same absent key hit Badger's commit
	// conflict detection; the retry inside SetNX must resolve every loser to
	// (false, nil) rather than an error, leaving exactly one winner.
	const writers = 64
	var wins atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			<-start
			stored, err := b.SetNX(ctx, "contested", []byte("v"), time.Minute)
			if err != nil {
				t.Errorf("SetNX error = %v", err)
				return
			}
			if stored {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("%d concurrent SetNX calls stored, want exactly 1", got)
	}
}

func TestBadgerTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("badger TTLs have second granularity")
	}

	b := openTestBadger(t)
	ctx := context.Background()

	if err := b.Set(ctx, "ephemeral", []byte("x"), time.Second); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	time.Sleep(2 * time.Second)

	if _, ok, _ := b.Get(ctx, "ephemeral"); ok {
		t.Error("entry still live after TTL elapsed")
	}

	// An expired entry must not block a new SetNX.
	stored, err := b.SetNX(ctx, "ephemeral", []byte("y"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX error = %v", err)
	}
	if !stored {
		t.Error("SetNX refused to replace an expired entry")
	}
}

func TestBadgerDeletePrefix(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Set(ctx, fmt.Sprintf("tracked:character:%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("Set error = %v", err)
		}
	}
	if err := b.Set(ctx, "dedup:123", []byte("v"), 0); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	if err := b.DeletePrefix(ctx, "tracked:character:"); err != nil {
		t.Fatalf("DeletePrefix error = %v", err)
	}

	if _, ok, _ := b.Get(ctx, "tracked:character:3"); ok {
		t.Error("prefixed entry survived DeletePrefix")
	}
	if _, ok, _ := b.Get(ctx, "dedup:123"); !ok {
		t.Error("unrelated entry removed by DeletePrefix")
	}
}

func TestBadgerClosed(t *testing.T) {
	b, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger error = %v", err)
	}
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close error = %v", err)
	}

	if _, _, err := b.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get on closed store error = %v, want ErrClosed", err)
	}
	if _, err := b.SetNX(ctx, "k", nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("SetNX on closed store error = %v, want ErrClosed", err)
	}
}

func TestBadgerPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger error = %v", err)
	}
	if err := b.Set(ctx, "durable", []byte("survives"), time.Hour); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	reopened, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "durable")
	if err != nil {
		t.Fatalf("Get after reopen error = %v", err)
	}
	if !ok || string(got) != "survives" {
		t.Errorf("entry did not survive restart: ok=%v value=%q", ok, got)
	}
}
