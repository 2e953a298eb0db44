// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package vector implements the in-memory per-user embedding index:
// brute-force cosine k-NN over dense vectors with deterministic
// ordering. The index is rebuilt from the analysis archive on startup
// and is never persisted itself.
package vector

import (
	"container/heap"
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cadenza-audio/cadenza/internal/metrics"
	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// Store is the in-memory vector index. A single RWMutex guards the
// maps: writers exclusive, readers shared. Scans hold the read lock for
// their whole duration, which is acceptable at the per-user entry cap.
type Store struct {
	mu sync.RWMutex

	dim        int
	maxPerUser int

	embeddings    map[int64]recommend.EmbeddingEntry
	analyses      map[int64]recommend.AnalysisRecord
	byUser        map[int64]map[int64]struct{}
	byFingerprint map[fpKey]int64
}

type fpKey struct {
	userID      int64
	fingerprint string
}

// compile-time interface compliance check
var _ recommend.VectorIndex = (*Store)(nil)

// NewStore creates an index accepting vectors of the given
// dimensionality with at most maxPerUser entries per user.
func NewStore(dim, maxPerUser int) *Store {
	return &Store{
		dim:           dim,
		maxPerUser:    maxPerUser,
		embeddings:    make(map[int64]recommend.EmbeddingEntry),
		analyses:      make(map[int64]recommend.AnalysisRecord),
		byUser:        make(map[int64]map[int64]struct{}),
		byFingerprint: make(map[fpKey]int64),
	}
}

// UpsertEmbedding stores an embedding, replacing any prior entry for
// the same audio. The vector is copied; callers may reuse the slice.
func (s *Store) UpsertEmbedding(entry recommend.EmbeddingEntry) error {
	if len(entry.Vector) != s.dim {
		return recommend.NewErrorf(recommend.CodeDimensionMismatch,
			"embedding has %d dimensions, index expects %d", len(entry.Vector), s.dim)
	}

	vec := make([]float32, s.dim)
	copy(vec, entry.Vector)
	entry.Vector = vec
	entry.Norm = l2norm(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCapacity(entry.UserID, entry.AudioID); err != nil {
		return err
	}

	if prior, ok := s.embeddings[entry.AudioID]; ok && prior.Fingerprint != "" {
		delete(s.byFingerprint, fpKey{prior.UserID, prior.Fingerprint})
	}

	s.embeddings[entry.AudioID] = entry
	s.addToUser(entry.UserID, entry.AudioID)
	if entry.Fingerprint != "" {
		s.byFingerprint[fpKey{entry.UserID, entry.Fingerprint}] = entry.AudioID
	}
	return nil
}

// UpsertAnalysis stores an analysis record, replacing any prior record
// for the same audio. No embedding is required to exist.
func (s *Store) UpsertAnalysis(record recommend.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCapacity(record.UserID, record.AudioID); err != nil {
		return err
	}

	s.analyses[record.AudioID] = record
	s.addToUser(record.UserID, record.AudioID)
	return nil
}

// checkCapacity rejects writes that would grow a user past the cap.
// Replacing an existing audio is always allowed. Must hold mu.
func (s *Store) checkCapacity(userID, audioID int64) error {
	ids := s.byUser[userID]
	if ids == nil {
		return nil
	}
	if _, exists := ids[audioID]; exists {
		return nil
	}
	if len(ids) >= s.maxPerUser {
		return recommend.NewErrorf(recommend.CodeCapacityExceeded,
			"user %d is at the %d entry cap", userID, s.maxPerUser)
	}
	return nil
}

func (s *Store) addToUser(userID, audioID int64) {
	ids := s.byUser[userID]
	if ids == nil {
		ids = make(map[int64]struct{})
		s.byUser[userID] = ids
	}
	ids[audioID] = struct{}{}
}

// Remove deletes all state for an audio across every map. Idempotent.
func (s *Store) Remove(audioID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var userID int64
	if e, ok := s.embeddings[audioID]; ok {
		userID = e.UserID
		if e.Fingerprint != "" {
			delete(s.byFingerprint, fpKey{e.UserID, e.Fingerprint})
		}
		delete(s.embeddings, audioID)
	}
	if a, ok := s.analyses[audioID]; ok {
		userID = a.UserID
		delete(s.analyses, audioID)
	}
	if userID == 0 {
		return
	}

	if ids := s.byUser[userID]; ids != nil {
		delete(ids, audioID)
		if len(ids) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// ClearEmbedding drops the embedding and its fingerprint mapping while
// keeping the analysis record. Idempotent.
func (s *Store) ClearEmbedding(audioID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.embeddings[audioID]
	if !ok {
		return
	}
	if e.Fingerprint != "" {
		delete(s.byFingerprint, fpKey{e.UserID, e.Fingerprint})
	}
	delete(s.embeddings, audioID)

	// The audio stays in the user set while its analysis remains.
	if _, hasAnalysis := s.analyses[audioID]; !hasAnalysis {
		if ids := s.byUser[e.UserID]; ids != nil {
			delete(ids, audioID)
			if len(ids) == 0 {
				delete(s.byUser, e.UserID)
			}
		}
	}
}

// KNN returns up to k nearest neighbors of the query within one user's
// embeddings, ordered by descending cosine similarity with ties broken
// by ascending audio ID. Audios without embeddings are skipped. The
// scan aborts between candidates when ctx expires.
func (s *Store) KNN(ctx context.Context, userID int64, query []float32, k int) ([]recommend.Neighbor, error) {
	if len(query) != s.dim {
		return nil, recommend.NewErrorf(recommend.CodeDimensionMismatch,
			"query has %d dimensions, index expects %d", len(query), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	queryNorm := l2norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &neighborHeap{}
	scanned := 0
	for audioID := range s.byUser[userID] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e, ok := s.embeddings[audioID]
		if !ok || e.Norm == 0 {
			continue
		}
		scanned++

		sim := dot(query, e.Vector) / (queryNorm * e.Norm)
		n := recommend.Neighbor{AudioID: audioID, Similarity: sim}
		if h.Len() < k {
			heap.Push(h, n)
			continue
		}
		if worseThan((*h)[0], n) {
			(*h)[0] = n
			heap.Fix(h, 0)
		}
	}

	out := make([]recommend.Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(recommend.Neighbor)
	}
	// Pop order is worst-first; reversing gives best-first, but equal
	// similarities still need the ascending-id order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].AudioID < out[j].AudioID
	})

	metrics.ObserveKNNScan(scanned, time.Since(start))
	return out, nil
}

// neighborHeap is a bounded worst-first heap: the root is the neighbor
// to evict next (lowest similarity, largest audio ID on ties).
type neighborHeap []recommend.Neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return worseThan(h[i], h[j]) }
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)         { *h = append(*h, x.(recommend.Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// worseThan reports whether a ranks below b.
func worseThan(a, b recommend.Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.AudioID > b.AudioID
}

// ListUser returns the user's analysis records, newest first, ties by
// ascending audio ID. A limit <= 0 means no limit.
func (s *Store) ListUser(userID int64, limit int) []recommend.AnalysisRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]recommend.AnalysisRecord, 0, len(ids))
	for audioID := range ids {
		if a, ok := s.analyses[audioID]; ok {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].AudioID < out[j].AudioID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Analysis returns the analysis record for an audio, if present.
func (s *Store) Analysis(audioID int64) (recommend.AnalysisRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[audioID]
	return a, ok
}

// Embedding returns the embedding entry for an audio, if present.
func (s *Store) Embedding(audioID int64) (recommend.EmbeddingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[audioID]
	return e, ok
}

// FingerprintOwner returns the audio holding a (user, fingerprint)
// pair, if any.
func (s *Store) FingerprintOwner(userID int64, fingerprint string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fpKey{userID, fingerprint}]
	return id, ok
}

// Stats returns store-wide counters.
func (s *Store) Stats() recommend.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recommend.IndexStats{
		Embeddings: len(s.embeddings),
		Analyses:   len(s.analyses),
		Users:      len(s.byUser),
	}
}

// l2norm computes the Euclidean norm of a vector.
func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dot computes the dot product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i, x := range a {
		sum += float64(x) * float64(b[i])
	}
	return sum
}
