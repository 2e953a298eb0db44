// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import (
	"context"
	"strings"
	"time"
)

// Storage backends implement the VectorIndex, ContextStore and
// AnalysisSource interfaces defined here. Keeping the contracts in the
// consumer package keeps the dependency arrows pointing inward and
// avoids import cycles between the service and its backends.

// AnalysisStatus tracks the lifecycle of an audio analysis.
type AnalysisStatus int

const (
	// StatusPending indicates the analysis has been queued.
	StatusPending AnalysisStatus = iota
	// StatusRunning indicates the extractor is processing the audio.
	StatusRunning
	// StatusCompleted indicates analysis finished; the audio is eligible
	// for ranking.
	StatusCompleted
	// StatusFailed indicates the extractor gave up on this audio.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s AnalysisStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseAnalysisStatus parses a status name. Unknown names return ok=false.
func ParseAnalysisStatus(s string) (AnalysisStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "running":
		return StatusRunning, true
	case "completed":
		return StatusCompleted, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// Mode specifies how candidate scores combine into the final ranking.
type Mode int

const (
	// ModeFusion blends cosine similarity with musical compatibility.
	ModeFusion Mode = iota
	// ModeRules ranks purely on musical compatibility.
	ModeRules
	// ModeVector ranks purely on cosine similarity.
	ModeVector
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFusion:
		return "fusion"
	case ModeRules:
		return "rules"
	case ModeVector:
		return "vector"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. The empty string maps to ModeFusion.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fusion":
		return ModeFusion, true
	case "rules":
		return ModeRules, true
	case "vector":
		return ModeVector, true
	default:
		return ModeFusion, false
	}
}

// Source identifies which scoring path produced a suggestion.
type Source string

const (
	// SourceFusion marks suggestions produced by the blended ranker.
	SourceFusion Source = "fusion"
	// SourceRules marks suggestions ranked on compatibility alone.
	SourceRules Source = "rules"
	// SourceVector marks suggestions ranked on cosine similarity alone.
	SourceVector Source = "vector"
	// SourceFallback marks suggestions from the deterministic
	// recency-based selector.
	SourceFallback Source = "fallback"
)

// MaxRecentAudioIDs bounds the recent-audio history kept per context.
const MaxRecentAudioIDs = 16

// SessionContext is the mutable per-user record of what the user is
// currently working on. Contexts are written wholesale (last writer
// wins) and expire after the store's TTL.
type SessionContext struct {
	// UserID is the internal user identifier.
	UserID int64 `json:"user_id"`

	// BPM is the session tempo in beats per minute. Zero means unset;
	// valid values are in [20, 300].
	BPM float64 `json:"bpm,omitempty"`

	// Key is the session key as entered by the user, e.g. "C major"
	// or "F# minor". Empty means unset.
	Key string `json:"key,omitempty"`

	// MoodTags are lowercased, deduplicated mood descriptors.
	MoodTags []string `json:"mood_tags,omitempty"`

	// GenreTags are lowercased, deduplicated genre descriptors.
	GenreTags []string `json:"genre_tags,omitempty"`

	// RecentAudioIDs lists recently used audio files, most recent
	// first. At most MaxRecentAudioIDs entries are kept.
	RecentAudioIDs []int64 `json:"recent_audio_ids,omitempty"`

	// UpdatedAt is stamped by the context store on every write and is
	// monotonic per user.
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize lowercases and deduplicates the tag sets and truncates the
// recent-audio history. It mutates the receiver.
func (sc *SessionContext) Normalize() {
	sc.MoodTags = normalizeTags(sc.MoodTags)
	sc.GenreTags = normalizeTags(sc.GenreTags)
	if len(sc.RecentAudioIDs) > MaxRecentAudioIDs {
		sc.RecentAudioIDs = sc.RecentAudioIDs[:MaxRecentAudioIDs]
	}
}

// normalizeTags lowercases, trims and deduplicates a tag set,
// preserving first-seen order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AnalysisRecord is the denormalized result of the feature extractor
// for one audio file. Records are replaced wholesale on re-analysis.
type AnalysisRecord struct {
	// AudioID is the unique audio identifier.
	AudioID int64 `json:"audio_id"`

	// UserID is the owning user.
	UserID int64 `json:"user_id"`

	// Tempo is the detected tempo in BPM. Zero means not detected.
	Tempo float64 `json:"tempo,omitempty"`

	// Key is the detected musical key, e.g. "D minor". Empty means
	// not detected.
	Key string `json:"key,omitempty"`

	// Genres are the detected genre tags.
	Genres []string `json:"genres,omitempty"`

	// Moods are the detected mood tags.
	Moods []string `json:"moods,omitempty"`

	// Status is the analysis lifecycle state. Only completed records
	// enter the ranking pool.
	Status AnalysisStatus `json:"status"`

	// CreatedAt is when the extractor produced this record.
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingEntry is one audio's dense acoustic signature in the vector
// store. Each audio maps to at most one current entry.
type EmbeddingEntry struct {
	// AudioID is the unique audio identifier.
	AudioID int64 `json:"audio_id"`

	// UserID is the owning user; knn only scans one user's set.
	UserID int64 `json:"user_id"`

	// Vector is the embedding produced by the acoustic model. Its
	// length must match the store's configured dimensionality.
	Vector []float32 `json:"vector"`

	// Norm is the L2 norm of Vector, precomputed at ingest.
	Norm float64 `json:"norm"`

	// ModelID identifies the embedding model that produced the vector.
	ModelID string `json:"model_id,omitempty"`

	// Fingerprint is the extractor's content fingerprint, used for
	// (user, fingerprint) deduplication. Empty disables dedup.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Suggestion is one ranked result.
type Suggestion struct {
	// AudioID is the suggested audio.
	AudioID int64 `json:"audio_id"`

	// Score is the final ranking score in [0, 1].
	Score float64 `json:"score"`

	// Source identifies the scoring path that produced this result.
	Source Source `json:"source"`

	// ScoreComponents is the weighted per-component breakdown
	// (tempo, key, mood, genre, cosine).
	ScoreComponents map[string]float64 `json:"score_components"`

	// Reason is an optional human-readable explanation.
	Reason string `json:"reason,omitempty"`
}

// Suggestions is the response to a suggestion query.
type Suggestions struct {
	// Mode is the mode the ranking ran under.
	Mode string `json:"mode"`

	// Suggestions is the ranked result list, best first.
	Suggestions []Suggestion `json:"suggestions"`
}

// Neighbor is a single k-NN result.
type Neighbor struct {
	// AudioID is the matched audio.
	AudioID int64

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64
}

// IndexStats summarizes the vector store contents.
type IndexStats struct {
	// Embeddings is the total number of embedding entries.
	Embeddings int `json:"embeddings"`

	// Analyses is the total number of analysis records.
	Analyses int `json:"analyses"`

	// Users is the number of users with at least one entry.
	Users int `json:"users"`
}

// VectorIndex is the contract the vector store implements. All methods
// are safe for concurrent use.
type VectorIndex interface {
	// UpsertEmbedding replaces any prior entry for the same audio.
	UpsertEmbedding(entry EmbeddingEntry) error

	// UpsertAnalysis replaces any prior record for the same audio.
	// An embedding is not required to exist.
	UpsertAnalysis(record AnalysisRecord) error

	// Remove deletes all state for an audio. Idempotent.
	Remove(audioID int64)

	// ClearEmbedding drops the embedding and fingerprint for an audio
	// while keeping its analysis record. Idempotent.
	ClearEmbedding(audioID int64)

	// KNN returns up to k nearest neighbors within one user's set,
	// ordered by descending similarity with ties broken by ascending
	// audio ID. The scan aborts at the next candidate boundary when
	// ctx expires.
	KNN(ctx context.Context, userID int64, query []float32, k int) ([]Neighbor, error)

	// ListUser returns the user's analysis records, newest first.
	// A limit <= 0 means no limit.
	ListUser(userID int64, limit int) []AnalysisRecord

	// Analysis returns the analysis record for an audio, if present.
	Analysis(audioID int64) (AnalysisRecord, bool)

	// Embedding returns the embedding entry for an audio, if present.
	Embedding(audioID int64) (EmbeddingEntry, bool)

	// FingerprintOwner returns the audio currently holding the given
	// (user, fingerprint) pair, if any.
	FingerprintOwner(userID int64, fingerprint string) (int64, bool)

	// Stats returns store-wide counters.
	Stats() IndexStats
}

// ContextStore is the contract the session-context cache implements.
type ContextStore interface {
	// Set stores the context wholesale, stamping UpdatedAt.
	Set(ctx context.Context, sc *SessionContext) error

	// Get returns the context for a user, or found=false when absent
	// or expired.
	Get(ctx context.Context, userID int64) (*SessionContext, bool, error)

	// Clear removes the context for a user. Idempotent.
	Clear(ctx context.Context, userID int64) error
}

// ReplayEntry is one completed analysis streamed from the analysis
// archive during cold-start index rebuild.
type ReplayEntry struct {
	// Analysis is the completed analysis record.
	Analysis AnalysisRecord

	// Embedding is the stored vector, or nil when the audio was never
	// embedded. Entries without embeddings load into the analysis map
	// only.
	Embedding []float32

	// ModelID identifies the embedding model, when Embedding is set.
	ModelID string

	// Fingerprint is the extractor's content fingerprint, when known.
	Fingerprint string
}

// AnalysisSource streams completed analyses for cold-start replay.
type AnalysisSource interface {
	// StreamCompleted invokes fn for every completed analysis.
	// Returning an error from fn aborts the stream.
	StreamCompleted(ctx context.Context, fn func(ReplayEntry) error) error
}
