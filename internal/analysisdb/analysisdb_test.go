// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package analysisdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cadenza-audio/cadenza/internal/recommend"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "analyses.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func completedEntry(audioID int64, vec []float32) recommend.ReplayEntry {
	return recommend.ReplayEntry{
		Analysis: recommend.AnalysisRecord{
			AudioID:   audioID,
			UserID:    1,
			Tempo:     124,
			Key:       "A minor",
			Genres:    []string{"house"},
			Moods:     []string{"warm"},
			Status:    recommend.StatusCompleted,
			CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Embedding:   vec,
		ModelID:     "acoustic-v2",
		Fingerprint: "fp-test",
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	want := completedEntry(10, []float32{0.5, -1.25, 3})
	if err := a.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got []recommend.ReplayEntry
	err := a.StreamCompleted(ctx, func(e recommend.ReplayEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompleted() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("streamed %d entries, want 1", len(got))
	}

	e := got[0]
	if e.Analysis.AudioID != 10 || e.Analysis.Tempo != 124 || e.Analysis.Key != "A minor" {
		t.Errorf("Analysis = %+v", e.Analysis)
	}
	if !e.Analysis.CreatedAt.Equal(want.Analysis.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", e.Analysis.CreatedAt, want.Analysis.CreatedAt)
	}
	if len(e.Embedding) != 3 || e.Embedding[1] != -1.25 {
		t.Errorf("Embedding = %v", e.Embedding)
	}
	if e.ModelID != "acoustic-v2" || e.Fingerprint != "fp-test" {
		t.Errorf("ModelID/Fingerprint = %q/%q", e.ModelID, e.Fingerprint)
	}
}

func TestArchiveUpsert(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	first := completedEntry(10, nil)
	if err := a.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second := completedEntry(10, []float32{1, 2})
	second.Analysis.Tempo = 90
	if err := a.Save(ctx, second); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	n, err := a.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	err = a.StreamCompleted(ctx, func(e recommend.ReplayEntry) error {
		if e.Analysis.Tempo != 90 {
			t.Errorf("Tempo = %v, want 90 after upsert", e.Analysis.Tempo)
		}
		if len(e.Embedding) != 2 {
			t.Errorf("Embedding = %v, want 2 dims", e.Embedding)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompleted() error = %v", err)
	}
}

func TestArchiveStreamSkipsNonCompleted(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	done := completedEntry(10, nil)
	if err := a.Save(ctx, done); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	pending := completedEntry(20, nil)
	pending.Analysis.Status = recommend.StatusPending
	if err := a.Save(ctx, pending); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var ids []int64
	err := a.StreamCompleted(ctx, func(e recommend.ReplayEntry) error {
		ids = append(ids, e.Analysis.AudioID)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompleted() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 10 {
		t.Errorf("streamed ids = %v, want [10]", ids)
	}
}

func TestArchiveStreamOrderAndAbort(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for _, id := range []int64{30, 10, 20} {
		if err := a.Save(ctx, completedEntry(id, nil)); err != nil {
			t.Fatalf("Save(%d) error = %v", id, err)
		}
	}

	var ids []int64
	err := a.StreamCompleted(ctx, func(e recommend.ReplayEntry) error {
		ids = append(ids, e.Analysis.AudioID)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompleted() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 20 || ids[2] != 30 {
		t.Errorf("streamed ids = %v, want ascending [10 20 30]", ids)
	}

	// A callback error aborts the stream.
	stop := context.Canceled
	seen := 0
	err = a.StreamCompleted(ctx, func(recommend.ReplayEntry) error {
		seen++
		return stop
	})
	if err != stop {
		t.Errorf("StreamCompleted() error = %v, want the callback error", err)
	}
	if seen != 1 {
		t.Errorf("callback ran %d times after abort, want 1", seen)
	}
}

func TestArchiveDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if err := a.Save(ctx, completedEntry(10, nil)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := a.Delete(ctx, 10); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := a.Delete(ctx, 10); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}

	n, err := a.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestVectorEncoding(t *testing.T) {
	vecs := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0.000001, 1e9},
	}
	for _, v := range vecs {
		got := decodeVector(encodeVector(v))
		if len(got) != len(v) {
			t.Fatalf("round trip changed length: %v -> %v", v, got)
		}
		for i := range v {
			if got[i] != v[i] {
				t.Errorf("round trip changed value at %d: %v -> %v", i, v[i], got[i])
			}
		}
	}
}
