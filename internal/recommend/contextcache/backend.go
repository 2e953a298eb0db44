// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package contextcache stores per-user session contexts with a TTL.
// Two interchangeable backends exist: an in-process map and a BadgerDB
// key/value store. The store latches to the in-process backend on the
// first backend failure and stays there for its lifetime.
package contextcache

import "time"

// Backend is a minimal TTL'd key/value store. Keys are namespaced by
// the caller; values are opaque bytes.
type Backend interface {
	// Get returns the value for a key, or found=false when absent or
	// expired.
	Get(key string) (value []byte, found bool, err error)

	// Set stores a value with the given time to live.
	Set(key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases backend resources.
	Close() error
}
