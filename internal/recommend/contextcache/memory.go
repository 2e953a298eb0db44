// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package contextcache

import (
	"sync"
	"time"
)

// MemoryBackend is the in-process map backend. Expiry is lazy: entries
// are dropped when read past their deadline, and a sweep runs every
// sweepEvery writes to keep abandoned users from accumulating.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	writes  int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

const sweepEvery = 1024

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

// Get returns the value for a key, dropping it when expired.
func (m *MemoryBackend) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		// Recheck under the write lock; a fresher write may have landed.
		if cur, ok := m.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value with the given time to live.
func (m *MemoryBackend) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.writes++
	if m.writes%sweepEvery == 0 {
		now := time.Now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// Delete removes a key.
func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close releases nothing; the backend is a plain map.
func (m *MemoryBackend) Close() error {
	return nil
}

// Len returns the number of live and expired entries still held.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
