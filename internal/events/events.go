// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package events carries analysis lifecycle events from the extractor
// boundary into the recommendation ingest path over an in-process
// Watermill pub/sub.
package events

import (
	"time"
)

// Topic names. The extractor publishes; the recommendation router
// subscribes.
const (
	TopicAnalysisCompleted = "analysis.completed"
	TopicAudioDeleted      = "audio.deleted"
)

// AnalysisCompleted announces one finished (or failed) extractor run.
type AnalysisCompleted struct {
	AudioID     int64     `json:"audio_id"`
	UserID      int64     `json:"user_id"`
	Tempo       float64   `json:"tempo,omitempty"`
	Key         string    `json:"key,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Moods       []string  `json:"moods,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ModelID     string    `json:"model_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Reanalyze   bool      `json:"reanalyze,omitempty"`
}

// AudioDeleted announces that an audio was removed upstream and all
// recommendation state for it must go.
type AudioDeleted struct {
	AudioID int64 `json:"audio_id"`
}
