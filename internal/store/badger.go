// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/shivamgawade-droid/sentinelx/internal/logging"
)

// BadgerConfig configures the BadgerDB-backed store.
type BadgerConfig struct {
	// Path is the on-disk directory for the database.
	Path string `json:"path" koanf:"path" validate:"required"`

	// SyncWrites forces fsync on every write. Required for the
	// crash-recovery contract; disable only in tests.
	SyncWrites bool `json:"sync_writes" koanf:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs.
	// Zero disables the GC loop.
	GCInterval time.Duration `json:"gc_interval" koanf:"gc_interval"`
}

// DefaultBadgerConfig returns production defaults.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		Path:       "/data/sentinelx/store",
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
	}
}

// BadgerStore implements Store on BadgerDB. Badger transactions give the
// atomic check-and-set semantics SetIfAbsent requires.
type BadgerStore struct {
	db     *badger.DB
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBadgerStore opens (or creates) the database at cfg.Path.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %s: %w", cfg.Path, err)
	}

	s := &BadgerStore{db: db, done: make(chan struct{})}
	if cfg.GCInterval > 0 {
		var ctx context.Context
		ctx, s.cancel = context.WithCancel(context.Background())
		go s.gcLoop(ctx, cfg.GCInterval)
	} else {
		close(s.done)
	}

	logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("badger store opened")
	return s, nil
}

// gcLoop periodically reclaims value-log space.
func (s *BadgerStore) gcLoop(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing to collect; not an error.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}

// Put stores value under key.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// Get retrieves the value for key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, nil
}

// SetIfAbsent atomically stores value when key is absent. The read and the
// conditional write share one transaction, so concurrent callers observe
// exactly one winner.
func (s *BadgerStore) SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var existing []byte
	stored := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == nil {
			existing, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored = true
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: set-if-absent %s: %w", key, err)
	}
	return existing, stored, nil
}

// Delete removes key.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// List returns all key/value pairs under prefix.
func (s *BadgerStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", prefix, err)
	}
	return out, nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	return s.db.Close()
}
