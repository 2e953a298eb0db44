// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import "sort"

// fallbackSuggestions returns up to topK of the user's completed
// analyses ordered by recency. It runs when the context or embedding
// path is unviable, so scores are zero and the ordering is fully
// deterministic: newest CreatedAt first, ties by ascending audio ID.
func fallbackSuggestions(index VectorIndex, userID int64, topK int) []Suggestion {
	records := index.ListUser(userID, 0)

	completed := records[:0]
	for _, r := range records {
		if r.Status == StatusCompleted {
			completed = append(completed, r)
		}
	}

	sort.Slice(completed, func(i, j int) bool {
		if !completed[i].CreatedAt.Equal(completed[j].CreatedAt) {
			return completed[i].CreatedAt.After(completed[j].CreatedAt)
		}
		return completed[i].AudioID < completed[j].AudioID
	})

	if len(completed) > topK {
		completed = completed[:topK]
	}

	out := make([]Suggestion, 0, len(completed))
	for _, r := range completed {
		out = append(out, Suggestion{
			AudioID:         r.AudioID,
			Score:           0,
			Source:          SourceFallback,
			ScoreComponents: map[string]float64{},
			Reason:          "recently analyzed",
		})
	}
	return out
}
