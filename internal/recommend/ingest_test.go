// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeIndex is a minimal VectorIndex for ingestor tests.
type fakeIndex struct {
	dim          int
	analyses     map[int64]AnalysisRecord
	embeddings   map[int64]EmbeddingEntry
	fingerprints map[string]int64
}

var _ VectorIndex = (*fakeIndex)(nil)

func newFakeIndex(dim int) *fakeIndex {
	return &fakeIndex{
		dim:          dim,
		analyses:     make(map[int64]AnalysisRecord),
		embeddings:   make(map[int64]EmbeddingEntry),
		fingerprints: make(map[string]int64),
	}
}

func (f *fakeIndex) UpsertEmbedding(entry EmbeddingEntry) error {
	if len(entry.Vector) != f.dim {
		return NewErrorf(CodeDimensionMismatch, "got %d dims, want %d", len(entry.Vector), f.dim)
	}
	f.embeddings[entry.AudioID] = entry
	if entry.Fingerprint != "" {
		f.fingerprints[entry.Fingerprint] = entry.AudioID
	}
	return nil
}

func (f *fakeIndex) UpsertAnalysis(record AnalysisRecord) error {
	f.analyses[record.AudioID] = record
	return nil
}

func (f *fakeIndex) Remove(audioID int64) {
	delete(f.analyses, audioID)
	if e, ok := f.embeddings[audioID]; ok {
		delete(f.fingerprints, e.Fingerprint)
		delete(f.embeddings, audioID)
	}
}

func (f *fakeIndex) ClearEmbedding(audioID int64) {
	if e, ok := f.embeddings[audioID]; ok {
		delete(f.fingerprints, e.Fingerprint)
		delete(f.embeddings, audioID)
	}
}

func (f *fakeIndex) KNN(_ context.Context, _ int64, _ []float32, _ int) ([]Neighbor, error) {
	return nil, nil
}

func (f *fakeIndex) ListUser(_ int64, _ int) []AnalysisRecord { return nil }

func (f *fakeIndex) Analysis(audioID int64) (AnalysisRecord, bool) {
	a, ok := f.analyses[audioID]
	return a, ok
}

func (f *fakeIndex) Embedding(audioID int64) (EmbeddingEntry, bool) {
	e, ok := f.embeddings[audioID]
	return e, ok
}

func (f *fakeIndex) FingerprintOwner(_ int64, fingerprint string) (int64, bool) {
	id, ok := f.fingerprints[fingerprint]
	return id, ok
}

func (f *fakeIndex) Stats() IndexStats {
	return IndexStats{Embeddings: len(f.embeddings), Analyses: len(f.analyses)}
}

func completedRequest(audioID int64, vec []float32, fingerprint string) *IngestRequest {
	return &IngestRequest{
		Analysis: AnalysisRecord{
			AudioID:   audioID,
			UserID:    1,
			Tempo:     120,
			Key:       "C major",
			Status:    StatusCompleted,
			CreatedAt: time.Now(),
		},
		Embedding:   vec,
		ModelID:     "acoustic-v2",
		Fingerprint: fingerprint,
	}
}

func TestIngestorHappyPath(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	if err := in.Ingest(completedRequest(10, []float32{1, 0, 0, 0}, "fp-10")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, ok := idx.Analysis(10); !ok {
		t.Error("analysis not written")
	}
	if _, ok := idx.Embedding(10); !ok {
		t.Error("embedding not written")
	}
}

func TestIngestorIdempotentRedelivery(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	req := completedRequest(10, []float32{1, 0, 0, 0}, "fp-10")
	if err := in.Ingest(req); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if err := in.Ingest(req); err != nil {
		t.Fatalf("redelivered Ingest() error = %v", err)
	}
	if idx.Stats().Analyses != 1 || idx.Stats().Embeddings != 1 {
		t.Errorf("stats = %+v, want exactly one entry", idx.Stats())
	}
}

func TestIngestorDuplicateFingerprint(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	if err := in.Ingest(completedRequest(10, []float32{1, 0, 0, 0}, "fp-shared")); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	err := in.Ingest(completedRequest(20, []float32{0, 1, 0, 0}, "fp-shared"))
	if !IsCode(err, CodeDuplicateFingerprint) {
		t.Fatalf("Ingest() error = %v, want %s", err, CodeDuplicateFingerprint)
	}
	if _, ok := idx.Analysis(20); ok {
		t.Error("duplicate's analysis must not be written")
	}
}

func TestIngestorAnalysisSurvivesEmbeddingFailure(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	err := in.Ingest(completedRequest(10, []float32{1, 0}, "")) // wrong width
	if !IsCode(err, CodeDimensionMismatch) {
		t.Fatalf("Ingest() error = %v, want %s", err, CodeDimensionMismatch)
	}
	if _, ok := idx.Analysis(10); !ok {
		t.Error("analysis must be written even when the embedding write fails")
	}
	if _, ok := idx.Embedding(10); ok {
		t.Error("embedding must not be written")
	}
}

func TestIngestorValidation(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	tests := []struct {
		name string
		req  *IngestRequest
	}{
		{"zero audio id", &IngestRequest{Analysis: AnalysisRecord{UserID: 1}}},
		{"zero user id", &IngestRequest{Analysis: AnalysisRecord{AudioID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := in.Ingest(tt.req); !IsCode(err, CodeValidation) {
				t.Errorf("Ingest() error = %v, want %s", err, CodeValidation)
			}
		})
	}
}

func TestIngestorStatusTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from, to  AnalysisStatus
		reanalyze bool
		ok        bool
	}{
		{"pending to running", StatusPending, StatusRunning, false, true},
		{"pending to completed", StatusPending, StatusCompleted, false, true},
		{"running to completed", StatusRunning, StatusCompleted, false, true},
		{"running to failed", StatusRunning, StatusFailed, false, true},
		{"failed retry", StatusFailed, StatusRunning, false, true},
		{"failed requeue", StatusFailed, StatusPending, false, true},
		{"same state redelivery", StatusCompleted, StatusCompleted, false, true},
		{"completed cannot regress", StatusCompleted, StatusRunning, false, false},
		{"completed reanalyze", StatusCompleted, StatusRunning, true, true},
		{"running cannot regress", StatusRunning, StatusPending, false, false},
		{"completed to failed forbidden", StatusCompleted, StatusFailed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validTransition(tt.from, tt.to, tt.reanalyze); got != tt.ok {
				t.Errorf("validTransition(%s, %s, %v) = %v, want %v",
					tt.from, tt.to, tt.reanalyze, got, tt.ok)
			}
		})
	}
}

func TestIngestorReanalyzeClearsEmbedding(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	if err := in.Ingest(completedRequest(10, []float32{1, 0, 0, 0}, "fp-10")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	rerun := &IngestRequest{
		Analysis: AnalysisRecord{
			AudioID: 10, UserID: 1, Status: StatusRunning, CreatedAt: time.Now(),
		},
		Reanalyze: true,
	}
	if err := in.Ingest(rerun); err != nil {
		t.Fatalf("reanalyze Ingest() error = %v", err)
	}
	if _, ok := idx.Embedding(10); ok {
		t.Error("reanalyze must clear the prior embedding")
	}
	if a, _ := idx.Analysis(10); a.Status != StatusRunning {
		t.Errorf("status = %s, want running", a.Status)
	}
}

func TestIngestorRejectsCrossUserAudio(t *testing.T) {
	idx := newFakeIndex(4)
	in := NewIngestor(idx, zerolog.Nop())

	if err := in.Ingest(completedRequest(10, nil, "")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	stolen := completedRequest(10, nil, "")
	stolen.Analysis.UserID = 2
	if err := in.Ingest(stolen); !IsCode(err, CodeValidation) {
		t.Errorf("Ingest() error = %v, want %s", err, CodeValidation)
	}
}
