// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Badger is a BadgerDB-backed Store. Entries carry Badger-native TTLs, so
// expiry survives process restarts; a restart within the dedup window does
// not re-notify already-seen killmails.
type Badger struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a BadgerDB store at path.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logger is too chatty; we log outcomes ourselves

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Badger{db: db}, nil
}

// NewBadger wraps an already-open BadgerDB instance.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.checkOpen(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.StoreOperationsTotal.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("get", "failure").Inc()
		return nil, false, err
	}

	metrics.StoreOperationsTotal.WithLabelValues("get", "hit").Inc()
	return value, true, nil
}

// Set implements Store.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("set", "failure").Inc()
		return err
	}

	metrics.StoreOperationsTotal.WithLabelValues("set", "success").Inc()
	return nil
}

// SetNX implements Store. The existence check and the insert share one
// update transaction. Overlapping transactions for the same absent key race
// under Badger's conflict detection: the losing commit returns ErrConflict,
// and the retry's Get then observes the winner's entry, so exactly one
// caller ever reports stored.
func (b *Badger) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}

	var (
		stored bool
		err    error
	)
	for {
		stored = false
		err = b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(key))
			if err == nil {
				return nil // live entry exists, leave it
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			entry := badger.NewEntry([]byte(key), value)
			if ttl > 0 {
				entry = entry.WithTTL(ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
			stored = true
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("setnx", "failure").Inc()
		return false, err
	}

	if stored {
		metrics.StoreOperationsTotal.WithLabelValues("setnx", "stored").Inc()
	} else {
		metrics.StoreOperationsTotal.WithLabelValues("setnx", "exists").Inc()
	}
	return stored, nil
}

// Delete implements Store.
func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("delete", "failure").Inc()
		return err
	}

	metrics.StoreOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// DeletePrefix implements Store.
func (b *Badger) DeletePrefix(ctx context.Context, prefix string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.DropPrefix([]byte(prefix))
}

// Close implements Store. Closing the wrapper closes the underlying DB.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.db.Close(); err != nil {
		logging.Error().Err(err).Msg("failed to close badger store")
		return err
	}
	return nil
}

func (b *Badger) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}
