// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package api

import (
	"time"

	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// setContextRequest is the body of POST /recommendations/context.
type setContextRequest struct {
	Context sessionContextPayload `json:"context" validate:"required"`
}

type sessionContextPayload struct {
	BPM            float64  `json:"bpm,omitempty" validate:"omitempty,gte=20,lte=300"`
	Key            string   `json:"key,omitempty" validate:"omitempty,musical_key"`
	MoodTags       []string `json:"mood_tags,omitempty" validate:"dive,min=1"`
	GenreTags      []string `json:"genre_tags,omitempty" validate:"dive,min=1"`
	RecentAudioIDs []int64  `json:"recent_audio_ids,omitempty" validate:"max=16,dive,gt=0"`
}

// toDomain builds the session context for a user.
func (p *sessionContextPayload) toDomain(userID int64) *recommend.SessionContext {
	return &recommend.SessionContext{
		UserID:         userID,
		BPM:            p.BPM,
		Key:            p.Key,
		MoodTags:       p.MoodTags,
		GenreTags:      p.GenreTags,
		RecentAudioIDs: p.RecentAudioIDs,
	}
}

// ingestRequest is the body of POST /recommendations/ingest, the
// synchronous twin of the analysis.completed event.
type ingestRequest struct {
	AudioID     int64     `json:"audio_id" validate:"required,gt=0"`
	Tempo       float64   `json:"tempo,omitempty" validate:"omitempty,gte=0"`
	Key         string    `json:"key,omitempty" validate:"omitempty,musical_key"`
	Genres      []string  `json:"genres,omitempty"`
	Moods       []string  `json:"moods,omitempty"`
	Status      string    `json:"status" validate:"required"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ModelID     string    `json:"model_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Reanalyze   bool      `json:"reanalyze,omitempty"`
}

// statusResponse is the body of GET /recommendations/status.
type statusResponse struct {
	Index            recommend.IndexStats `json:"index"`
	ContextsDegraded bool                 `json:"contexts_degraded"`
}
