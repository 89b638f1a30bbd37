// SentinelX - Multi-Modal Threat Detection and Response Pipeline
// Copyright 2026 Shivam Gawade (shivamgawade-droid)
// SPDX-License-Identifier: MIT
// https://github.com/shivamgawade-droid/sentinelx

// Package store provides durable per-key persistence for request state,
// completed-action records, and containment directives. The pipeline
// depends only on the atomic read/write contract defined here, not on the
// storage engine; BadgerDB backs production and an in-memory map backs
// tests.
package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key does not exist.
var ErrKeyNotFound = errors.New("store: key not found")

// Well-known key prefixes. Keeping them in one place prevents collisions
// between subsystems sharing a store.
const (
	PrefixRequest     = "request/"
	PrefixAction      = "action/"
	PrefixContainment = "containment/"
	PrefixAudit       = "audit/"
)

// Store is a durable key-value store with atomic per-key updates.
//
// SetIfAbsent is the load-bearing operation: the dispatcher's idempotency
// guarantee rests on its atomic check-and-set semantics under concurrent
// retries.
type Store interface {
	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Get retrieves the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetIfAbsent atomically stores value only when key is absent. It
	// returns stored=true when the write happened, or the existing value
	// and stored=false when another writer got there first.
	SetIfAbsent(ctx context.Context, key string, value []byte) (existing []byte, stored bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs under the given prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Close releases store resources.
	Close() error
}
