// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import (
	"github.com/rs/zerolog"
)

// IngestRequest carries one analysis result from the extractor
// boundary into the index.
type IngestRequest struct {
	// Analysis is the record to write. AudioID and UserID are required.
	Analysis AnalysisRecord

	// Embedding is the audio's vector, or nil when the extractor did
	// not produce one.
	Embedding []float32

	// ModelID identifies the embedding model, when Embedding is set.
	ModelID string

	// Fingerprint is the extractor's content fingerprint. Empty
	// disables deduplication for this request.
	Fingerprint string

	// Reanalyze permits leaving the completed state. The prior
	// embedding is cleared before the new record is written.
	Reanalyze bool
}

// Ingestor applies extractor output to the vector index. It is
// idempotent by audio ID: re-delivering the same request is a no-op
// success. Callers serialize requests per user; the ingestor itself
// holds no locks beyond the index's own.
type Ingestor struct {
	index  VectorIndex
	logger zerolog.Logger
}

// NewIngestor creates an ingestor writing to the given index.
func NewIngestor(index VectorIndex, logger zerolog.Logger) *Ingestor {
	return &Ingestor{index: index, logger: logger}
}

// Ingest validates and applies one request. On embedding write failure
// the analysis record has already been stored; the error reports the
// embedding problem only.
func (in *Ingestor) Ingest(req *IngestRequest) error {
	if req.Analysis.AudioID <= 0 {
		return NewError(CodeValidation, "audio_id must be positive")
	}
	if req.Analysis.UserID <= 0 {
		return NewError(CodeValidation, "user_id must be positive")
	}

	prior, hadPrior := in.index.Analysis(req.Analysis.AudioID)
	if hadPrior {
		if prior.UserID != req.Analysis.UserID {
			return NewErrorf(CodeValidation,
				"audio %d belongs to user %d", req.Analysis.AudioID, prior.UserID)
		}
		if !validTransition(prior.Status, req.Analysis.Status, req.Reanalyze) {
			return NewErrorf(CodeValidation,
				"illegal status transition %s -> %s for audio %d",
				prior.Status, req.Analysis.Status, req.Analysis.AudioID)
		}
	}

	if req.Fingerprint != "" {
		owner, taken := in.index.FingerprintOwner(req.Analysis.UserID, req.Fingerprint)
		if taken && owner != req.Analysis.AudioID {
			in.logger.Warn().
				Int64("audio_id", req.Analysis.AudioID).
				Int64("owner_audio_id", owner).
				Int64("user_id", req.Analysis.UserID).
				Msg("duplicate fingerprint rejected")
			return NewErrorf(CodeDuplicateFingerprint,
				"fingerprint already registered to audio %d", owner)
		}
	}

	// Re-analysis restarts the embedding lifecycle for the audio.
	if req.Reanalyze && hadPrior && prior.Status == StatusCompleted {
		in.index.ClearEmbedding(req.Analysis.AudioID)
	}

	req.Analysis.Normalize()
	if err := in.index.UpsertAnalysis(req.Analysis); err != nil {
		return err
	}

	if req.Embedding == nil {
		return nil
	}

	err := in.index.UpsertEmbedding(EmbeddingEntry{
		AudioID:     req.Analysis.AudioID,
		UserID:      req.Analysis.UserID,
		Vector:      req.Embedding,
		ModelID:     req.ModelID,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		// The analysis record stays: a failed embedding write must not
		// lose the musical features.
		in.logger.Error().Err(err).
			Int64("audio_id", req.Analysis.AudioID).
			Msg("embedding write failed; analysis retained")
		return err
	}
	return nil
}

// validTransition enforces the analysis lifecycle. Same-state writes
// are always legal so that event redelivery stays a no-op.
func validTransition(from, to AnalysisStatus, reanalyze bool) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCompleted || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusPending || to == StatusRunning
	case StatusCompleted:
		return reanalyze && (to == StatusPending || to == StatusRunning)
	default:
		return false
	}
}

// Normalize lowercases and deduplicates the record's tag sets.
func (a *AnalysisRecord) Normalize() {
	a.Genres = normalizeTags(a.Genres)
	a.Moods = normalizeTags(a.Moods)
}
