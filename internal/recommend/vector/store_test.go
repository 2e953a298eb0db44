// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package vector

import (
	"context"
	"testing"
	"time"

	"github.com/cadenza-audio/cadenza/internal/recommend"
)

func mustUpsertEmbedding(t *testing.T, s *Store, audioID, userID int64, vec []float32) {
	t.Helper()
	err := s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: audioID, UserID: userID, Vector: vec,
	})
	if err != nil {
		t.Fatalf("UpsertEmbedding(%d) error = %v", audioID, err)
	}
}

func mustUpsertAnalysis(t *testing.T, s *Store, audioID, userID int64, created time.Time) {
	t.Helper()
	err := s.UpsertAnalysis(recommend.AnalysisRecord{
		AudioID: audioID, UserID: userID,
		Status: recommend.StatusCompleted, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("UpsertAnalysis(%d) error = %v", audioID, err)
	}
}

func TestUpsertEmbeddingDimensionMismatch(t *testing.T) {
	s := NewStore(4, 100)

	err := s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: 1, UserID: 1, Vector: []float32{1, 2},
	})
	if !recommend.IsCode(err, recommend.CodeDimensionMismatch) {
		t.Fatalf("UpsertEmbedding() error = %v, want %s", err, recommend.CodeDimensionMismatch)
	}
	if s.Stats().Embeddings != 0 {
		t.Error("mismatched embedding must not be stored")
	}
}

func TestUpsertEmbeddingReplaces(t *testing.T) {
	s := NewStore(2, 100)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0})
	mustUpsertEmbedding(t, s, 1, 1, []float32{0, 1})

	e, ok := s.Embedding(1)
	if !ok {
		t.Fatal("embedding missing after replace")
	}
	if e.Vector[0] != 0 || e.Vector[1] != 1 {
		t.Errorf("Vector = %v, want [0 1]", e.Vector)
	}
	if s.Stats().Embeddings != 1 {
		t.Errorf("Embeddings = %d, want 1", s.Stats().Embeddings)
	}
}

func TestCapacityCap(t *testing.T) {
	s := NewStore(2, 2)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0})
	mustUpsertEmbedding(t, s, 2, 1, []float32{0, 1})

	err := s.UpsertEmbedding(recommend.EmbeddingEntry{AudioID: 3, UserID: 1, Vector: []float32{1, 1}})
	if !recommend.IsCode(err, recommend.CodeCapacityExceeded) {
		t.Fatalf("UpsertEmbedding() error = %v, want %s", err, recommend.CodeCapacityExceeded)
	}

	// Replacing an existing audio is always allowed.
	if err := s.UpsertEmbedding(recommend.EmbeddingEntry{AudioID: 2, UserID: 1, Vector: []float32{1, 1}}); err != nil {
		t.Errorf("replacement at capacity error = %v", err)
	}

	// Other users are unaffected.
	if err := s.UpsertEmbedding(recommend.EmbeddingEntry{AudioID: 4, UserID: 2, Vector: []float32{1, 0}}); err != nil {
		t.Errorf("other user at capacity error = %v", err)
	}

	// The analysis map shares the same cap.
	err = s.UpsertAnalysis(recommend.AnalysisRecord{AudioID: 5, UserID: 1, Status: recommend.StatusCompleted})
	if !recommend.IsCode(err, recommend.CodeCapacityExceeded) {
		t.Errorf("UpsertAnalysis() error = %v, want %s", err, recommend.CodeCapacityExceeded)
	}
}

func TestKNNOrderingAndTies(t *testing.T) {
	s := NewStore(2, 100)
	mustUpsertEmbedding(t, s, 30, 1, []float32{1, 0}) // cos 1 with query
	mustUpsertEmbedding(t, s, 10, 1, []float32{1, 0}) // cos 1, smaller id wins tie
	mustUpsertEmbedding(t, s, 20, 1, []float32{0, 1}) // cos 0

	got, err := s.KNN(context.Background(), 1, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("KNN() error = %v", err)
	}
	wantIDs := []int64{10, 30, 20}
	if len(got) != len(wantIDs) {
		t.Fatalf("KNN returned %d neighbors, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].AudioID != want {
			t.Errorf("neighbor[%d] = %d, want %d", i, got[i].AudioID, want)
		}
	}
}

func TestKNNBoundedKWithTies(t *testing.T) {
	s := NewStore(2, 100)
	// Five identical vectors; with k=3 the three smallest ids must win
	// regardless of map iteration order.
	for _, id := range []int64{50, 40, 30, 20, 10} {
		mustUpsertEmbedding(t, s, id, 1, []float32{1, 0})
	}

	for run := 0; run < 10; run++ {
		got, err := s.KNN(context.Background(), 1, []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("KNN() error = %v", err)
		}
		wantIDs := []int64{10, 20, 30}
		for i, want := range wantIDs {
			if got[i].AudioID != want {
				t.Fatalf("run %d: neighbor[%d] = %d, want %d", run, i, got[i].AudioID, want)
			}
		}
	}
}

func TestKNNSkipsAnalysisOnlyAudios(t *testing.T) {
	s := NewStore(2, 100)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0})
	mustUpsertAnalysis(t, s, 2, 1, time.Now()) // no embedding

	got, err := s.KNN(context.Background(), 1, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("KNN() error = %v", err)
	}
	if len(got) != 1 || got[0].AudioID != 1 {
		t.Errorf("KNN = %v, want only audio 1", got)
	}
}

func TestKNNUserIsolation(t *testing.T) {
	s := NewStore(2, 100)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0})
	mustUpsertEmbedding(t, s, 2, 2, []float32{1, 0})

	got, err := s.KNN(context.Background(), 1, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("KNN() error = %v", err)
	}
	if len(got) != 1 || got[0].AudioID != 1 {
		t.Errorf("KNN leaked across users: %v", got)
	}
}

func TestKNNQueryValidation(t *testing.T) {
	s := NewStore(4, 100)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0, 0, 0})

	if _, err := s.KNN(context.Background(), 1, []float32{1}, 10); !recommend.IsCode(err, recommend.CodeDimensionMismatch) {
		t.Errorf("KNN() error = %v, want %s", err, recommend.CodeDimensionMismatch)
	}

	got, err := s.KNN(context.Background(), 1, []float32{0, 0, 0, 0}, 10)
	if err != nil || got != nil {
		t.Errorf("zero query should return no neighbors, got %v, %v", got, err)
	}
}

func TestKNNRespectsContext(t *testing.T) {
	s := NewStore(2, 100)
	mustUpsertEmbedding(t, s, 1, 1, []float32{1, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.KNN(ctx, 1, []float32{1, 0}, 10); err == nil {
		t.Error("KNN with canceled context should fail")
	}
}

func TestRemoveCascades(t *testing.T) {
	s := NewStore(2, 100)
	err := s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: 1, UserID: 1, Vector: []float32{1, 0}, Fingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("UpsertEmbedding() error = %v", err)
	}
	mustUpsertAnalysis(t, s, 1, 1, time.Now())

	s.Remove(1)
	s.Remove(1) // idempotent

	if _, ok := s.Embedding(1); ok {
		t.Error("embedding survived Remove")
	}
	if _, ok := s.Analysis(1); ok {
		t.Error("analysis survived Remove")
	}
	if _, ok := s.FingerprintOwner(1, "fp-1"); ok {
		t.Error("fingerprint mapping survived Remove")
	}
	if got := s.Stats(); got.Users != 0 {
		t.Errorf("Users = %d, want 0", got.Users)
	}
}

func TestClearEmbeddingKeepsAnalysis(t *testing.T) {
	s := NewStore(2, 100)
	err := s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: 1, UserID: 1, Vector: []float32{1, 0}, Fingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("UpsertEmbedding() error = %v", err)
	}
	mustUpsertAnalysis(t, s, 1, 1, time.Now())

	s.ClearEmbedding(1)
	s.ClearEmbedding(1) // idempotent

	if _, ok := s.Embedding(1); ok {
		t.Error("embedding survived ClearEmbedding")
	}
	if _, ok := s.Analysis(1); !ok {
		t.Error("analysis must survive ClearEmbedding")
	}
	if _, ok := s.FingerprintOwner(1, "fp-1"); ok {
		t.Error("fingerprint mapping survived ClearEmbedding")
	}
	if got := s.ListUser(1, 0); len(got) != 1 {
		t.Errorf("ListUser = %v, want the surviving analysis", got)
	}
}

func TestListUserOrdering(t *testing.T) {
	s := NewStore(2, 100)
	base := time.Now()

	mustUpsertAnalysis(t, s, 30, 1, base.Add(-time.Hour))
	mustUpsertAnalysis(t, s, 20, 1, base)
	mustUpsertAnalysis(t, s, 10, 1, base)

	got := s.ListUser(1, 0)
	wantIDs := []int64{10, 20, 30}
	if len(got) != len(wantIDs) {
		t.Fatalf("ListUser returned %d records, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].AudioID != want {
			t.Errorf("record[%d] = %d, want %d", i, got[i].AudioID, want)
		}
	}

	if limited := s.ListUser(1, 2); len(limited) != 2 {
		t.Errorf("ListUser(limit=2) returned %d records", len(limited))
	}
}

func TestFingerprintReplacedWithEmbedding(t *testing.T) {
	s := NewStore(2, 100)
	err := s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: 1, UserID: 1, Vector: []float32{1, 0}, Fingerprint: "fp-old",
	})
	if err != nil {
		t.Fatalf("UpsertEmbedding() error = %v", err)
	}
	err = s.UpsertEmbedding(recommend.EmbeddingEntry{
		AudioID: 1, UserID: 1, Vector: []float32{0, 1}, Fingerprint: "fp-new",
	})
	if err != nil {
		t.Fatalf("UpsertEmbedding() error = %v", err)
	}

	if _, ok := s.FingerprintOwner(1, "fp-old"); ok {
		t.Error("stale fingerprint mapping survived replacement")
	}
	if owner, ok := s.FingerprintOwner(1, "fp-new"); !ok || owner != 1 {
		t.Errorf("FingerprintOwner(fp-new) = %d, %v", owner, ok)
	}
}
