// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import "sort"

// fusionVectorWeight and fusionCompatWeight blend cosine similarity and
// musical compatibility in fusion mode.
const (
	fusionVectorWeight = 0.5
	fusionCompatWeight = 0.5
)

// candidate is one audio under consideration by the ranker.
type candidate struct {
	audioID   int64
	cosine    float64
	hasCosine bool
	analysis  *AnalysisRecord
}

// rank scores and orders candidates under the given mode. The result is
// sorted by descending final score with ties broken by ascending audio
// ID, truncated to topK.
func rank(mode Mode, sc *SessionContext, cands []candidate, topK int) []Suggestion {
	out := make([]Suggestion, 0, len(cands))
	for i := range cands {
		s, ok := scoreCandidate(mode, sc, &cands[i])
		if !ok {
			continue
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AudioID < out[j].AudioID
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// scoreCandidate produces the mode-specific suggestion for one
// candidate. ok=false drops the candidate from the ranking.
func scoreCandidate(mode Mode, sc *SessionContext, c *candidate) (Suggestion, bool) {
	cosine := clampPositive(c.cosine)

	var compat CompatScore
	if c.analysis != nil {
		compat = ScoreCompat(sc, c.analysis)
	}
	r := compat.Total()

	components := compat.Weighted()
	if c.hasCosine {
		components["cosine"] = cosine
	}

	var (
		final  float64
		source Source
	)
	switch mode {
	case ModeRules:
		// Compatibility needs analyzed features; candidates without a
		// record cannot be scored in this mode.
		if c.analysis == nil {
			return Suggestion{}, false
		}
		final = r
		source = SourceRules
	case ModeVector:
		final = cosine
		if r > 0 {
			source = SourceFusion
		} else {
			source = SourceVector
		}
	default: // ModeFusion
		final = fusionVectorWeight*cosine + fusionCompatWeight*r
		source = SourceFusion
	}

	return Suggestion{
		AudioID:         c.audioID,
		Score:           final,
		Source:          source,
		ScoreComponents: components,
	}, true
}

// clampPositive clamps negative cosine similarity to zero. Opposed
// vectors carry no useful ranking signal here.
func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
