// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import "math"

// Component weights for the musical compatibility score. They sum to 1.
const (
	WeightTempo = 0.25
	WeightKey   = 0.30
	WeightMood  = 0.25
	WeightGenre = 0.20
)

// tempoToleranceBPM is the BPM delta at which the tempo score reaches 0.
const tempoToleranceBPM = 12.0

// harmonicTempoFloor is the minimum tempo score granted when the
// candidate sits within harmonicTempoWindow of double or half time.
const (
	harmonicTempoFloor  = 0.6
	harmonicTempoWindow = 1.0
)

// CompatScore is the per-component breakdown of a compatibility score.
// Component fields hold raw (unweighted) sub-scores in [0, 1].
type CompatScore struct {
	Tempo float64
	Key   float64
	Mood  float64
	Genre float64
}

// Total returns the weighted sum of the components, in [0, 1].
func (cs CompatScore) Total() float64 {
	return WeightTempo*cs.Tempo +
		WeightKey*cs.Key +
		WeightMood*cs.Mood +
		WeightGenre*cs.Genre
}

// Weighted returns the weighted per-component breakdown for reporting.
func (cs CompatScore) Weighted() map[string]float64 {
	return map[string]float64{
		"tempo": WeightTempo * cs.Tempo,
		"key":   WeightKey * cs.Key,
		"mood":  WeightMood * cs.Mood,
		"genre": WeightGenre * cs.Genre,
	}
}

// ScoreCompat scores how well an analyzed audio fits the session
// context. Pure function: a component whose data is missing on either
// side scores 0 rather than being skipped, so sparse candidates rank
// below well-described ones.
func ScoreCompat(sc *SessionContext, a *AnalysisRecord) CompatScore {
	if sc == nil || a == nil {
		return CompatScore{}
	}
	return CompatScore{
		Tempo: tempoScore(sc.BPM, a.Tempo),
		Key:   KeyCompatibility(sc.Key, a.Key),
		Mood:  jaccard(sc.MoodTags, a.Moods),
		Genre: jaccard(sc.GenreTags, a.Genres),
	}
}

// tempoScore scores tempo proximity with a linear falloff over
// tempoToleranceBPM. Double-time and half-time candidates within
// harmonicTempoWindow BPM are floored at harmonicTempoFloor; no wider
// harmonic ratios are rewarded.
func tempoScore(sessionBPM, candidateBPM float64) float64 {
	if sessionBPM <= 0 || candidateBPM <= 0 {
		return 0
	}

	delta := math.Abs(sessionBPM - candidateBPM)
	score := 1 - delta/tempoToleranceBPM
	if score < 0 {
		score = 0
	}

	if math.Abs(candidateBPM-sessionBPM*2) <= harmonicTempoWindow ||
		math.Abs(candidateBPM-sessionBPM/2) <= harmonicTempoWindow {
		if score < harmonicTempoFloor {
			score = harmonicTempoFloor
		}
	}
	return score
}

// jaccard computes intersection-over-union on lowercased tag sets.
// Either side being empty scores 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(a))
	for _, t := range normalizeTags(a) {
		set[t] = struct{}{}
	}

	intersection := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, t := range normalizeTags(b) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
