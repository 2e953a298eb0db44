// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package contextcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/cadenza-audio/cadenza/internal/metrics"
	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// Backend names accepted by the factory.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// DefaultTTL is the context lifetime when none is configured.
const DefaultTTL = 3600 * time.Second

// Config selects and tunes the context store.
type Config struct {
	// Backend is "memory" or "badger".
	Backend string

	// Path is the Badger database directory. Ignored for memory.
	Path string

	// TTL is the context lifetime, reset on every write.
	TTL time.Duration
}

// Store is the session-context cache. Writes go to the selected
// backend through a circuit breaker; the first failure latches the
// store to an in-process map for the remainder of its lifetime, so a
// flapping KV store cannot stall the request path.
type Store struct {
	ttl      time.Duration
	primary  Backend
	memory   *MemoryBackend
	breaker  *gobreaker.CircuitBreaker[[]byte]
	degraded atomic.Bool
	logOnce  sync.Once
	logger   zerolog.Logger

	// lastWrite keeps UpdatedAt monotonic per user across clock skew.
	// Entries older than the TTL are swept periodically; once the
	// context itself has expired there is nothing left to order against.
	writeMu   sync.Mutex
	lastWrite map[int64]time.Time
	stamps    int
}

var _ recommend.ContextStore = (*Store)(nil)

// New creates a context store for the configured backend. A memory
// configuration uses the in-process map directly with no breaker
// involvement.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	s := &Store{
		ttl:       cfg.TTL,
		memory:    NewMemoryBackend(),
		logger:    logger,
		lastWrite: make(map[int64]time.Time),
	}

	switch cfg.Backend {
	case "", BackendMemory:
		s.primary = s.memory
		return s, nil
	case BackendBadger:
		primary, err := NewBadgerBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.primary = primary
	default:
		return nil, fmt.Errorf("unknown context cache backend %q", cfg.Backend)
	}

	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name: "contextcache",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				s.latch()
			}
		},
	})
	return s, nil
}

// latch permanently switches the store to the in-process backend.
func (s *Store) latch() {
	if s.degraded.Swap(true) {
		return
	}
	metrics.ContextCacheDegraded.Set(1)
	s.logOnce.Do(func() {
		s.logger.Error().
			Str("code", string(recommend.CodeBackendUnavailable)).
			Msg("context backend failed; latched to in-process store")
	})
}

// backendFor returns the backend a call should use right now.
func (s *Store) backendFor() Backend {
	if s.breaker == nil || s.degraded.Load() {
		return s.memory
	}
	return s.primary
}

// contextKey builds the namespaced storage key for a user.
func contextKey(userID int64) string {
	return fmt.Sprintf("context:%d", userID)
}

// Set stores the context wholesale, stamping a monotonic UpdatedAt and
// resetting the TTL. Backend failures degrade to the in-process map
// without surfacing an error.
func (s *Store) Set(ctx context.Context, sc *recommend.SessionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sc.UpdatedAt = s.stampUpdatedAt(sc.UserID)

	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal context for user %d: %w", sc.UserID, err)
	}
	key := contextKey(sc.UserID)

	backend := s.backendFor()
	if backend == s.memory {
		return s.memory.Set(key, data, s.ttl)
	}

	_, err = s.breaker.Execute(func() ([]byte, error) {
		return nil, backend.Set(key, data, s.ttl)
	})
	if err != nil {
		s.latch()
		return s.memory.Set(key, data, s.ttl)
	}
	return nil
}

// stampUpdatedAt returns a timestamp strictly after the user's previous
// write even when the wall clock steps backwards.
func (s *Store) stampUpdatedAt(userID int64) time.Time {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	if last, ok := s.lastWrite[userID]; ok && !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	s.lastWrite[userID] = now

	s.stamps++
	if s.stamps%sweepEvery == 0 {
		for id, last := range s.lastWrite {
			if now.Sub(last) > s.ttl {
				delete(s.lastWrite, id)
			}
		}
	}
	return now
}

// Get returns the context for a user, or found=false when absent or
// expired.
func (s *Store) Get(ctx context.Context, userID int64) (*recommend.SessionContext, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	key := contextKey(userID)

	var (
		data  []byte
		found bool
	)
	backend := s.backendFor()
	if backend == s.memory {
		var err error
		data, found, err = s.memory.Get(key)
		if err != nil {
			return nil, false, err
		}
	} else {
		var execErr error
		data, execErr = s.breaker.Execute(func() ([]byte, error) {
			v, ok, err := backend.Get(key)
			if err != nil {
				return nil, err
			}
			if ok {
				return v, nil
			}
			return nil, nil
		})
		if execErr != nil {
			s.latch()
			data, found, _ = s.memory.Get(key)
		} else {
			found = data != nil
		}
	}

	if !found {
		metrics.ContextCacheOps.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	var sc recommend.SessionContext
	if err := json.Unmarshal(data, &sc); err != nil {
		metrics.ContextCacheOps.WithLabelValues("corrupt").Inc()
		return nil, false, fmt.Errorf("decode context for user %d: %w", userID, err)
	}
	metrics.ContextCacheOps.WithLabelValues("hit").Inc()
	return &sc, true, nil
}

// Clear removes the context for a user from both backends. Idempotent.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := contextKey(userID)

	_ = s.memory.Delete(key)

	backend := s.backendFor()
	if backend == s.memory {
		return nil
	}
	_, err := s.breaker.Execute(func() ([]byte, error) {
		return nil, backend.Delete(key)
	})
	if err != nil {
		s.latch()
	}
	return nil
}

// Degraded reports whether the store has latched to the in-process
// backend.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Close closes the selected backend.
func (s *Store) Close() error {
	if s.breaker != nil {
		return s.primary.Close()
	}
	return nil
}
