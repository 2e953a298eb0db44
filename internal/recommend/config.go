// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import (
	"fmt"
	"time"
)

// Config tunes the recommendation service.
type Config struct {
	// TopKDefault is the result count when the caller does not specify one.
	TopKDefault int

	// TopKMax caps the requestable result count.
	TopKMax int

	// KNNCandidateMultiplier scales top_k into the knn candidate pool.
	KNNCandidateMultiplier int

	// MinCandidatePool is the candidate pool floor regardless of top_k.
	MinCandidatePool int

	// Deadline bounds one suggestion query end to end.
	Deadline time.Duration

	// PseudoVectorRecents is how many recent embeddings are averaged
	// into the seed when the most recent audio has no embedding.
	PseudoVectorRecents int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TopKDefault:            10,
		TopKMax:                50,
		KNNCandidateMultiplier: 4,
		MinCandidatePool:       32,
		Deadline:               500 * time.Millisecond,
		PseudoVectorRecents:    4,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.TopKDefault < 1 {
		return fmt.Errorf("top_k default must be >= 1, got %d", c.TopKDefault)
	}
	if c.TopKMax < c.TopKDefault {
		return fmt.Errorf("top_k max %d below default %d", c.TopKMax, c.TopKDefault)
	}
	if c.KNNCandidateMultiplier < 1 {
		return fmt.Errorf("knn candidate multiplier must be >= 1, got %d", c.KNNCandidateMultiplier)
	}
	if c.MinCandidatePool < 1 {
		return fmt.Errorf("min candidate pool must be >= 1, got %d", c.MinCandidatePool)
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive, got %s", c.Deadline)
	}
	if c.PseudoVectorRecents < 1 {
		return fmt.Errorf("pseudo-vector recents must be >= 1, got %d", c.PseudoVectorRecents)
	}
	return nil
}
