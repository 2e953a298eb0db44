// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package recommend implements the contextual audio recommendation
// core: session contexts, the in-memory vector index contract, the
// musical compatibility scorer and the fusion ranker.
package recommend

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cadenza-audio/cadenza/internal/metrics"
)

// Service orchestrates suggestion queries and index writes. It owns no
// storage itself; backends are injected through the VectorIndex and
// ContextStore contracts.
type Service struct {
	cfg      Config
	index    VectorIndex
	contexts ContextStore
	ingestor *Ingestor
	writes   keyedMutex
	logger   zerolog.Logger
}

// NewService creates a recommendation service.
func NewService(cfg Config, index VectorIndex, contexts ContextStore, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if index == nil {
		return nil, errors.New("recommend: nil vector index")
	}
	if contexts == nil {
		return nil, errors.New("recommend: nil context store")
	}
	return &Service{
		cfg:      cfg,
		index:    index,
		contexts: contexts,
		ingestor: NewIngestor(index, logger),
		logger:   logger,
	}, nil
}

// SetContext validates and stores a session context wholesale.
func (s *Service) SetContext(ctx context.Context, sc *SessionContext) error {
	if sc == nil || sc.UserID <= 0 {
		return NewError(CodeValidation, "user_id must be positive")
	}
	if sc.BPM != 0 && (sc.BPM < 20 || sc.BPM > 300) {
		return NewErrorf(CodeValidation, "bpm %g out of range [20, 300]", sc.BPM)
	}
	if sc.Key != "" {
		if _, ok := ParseKey(sc.Key); !ok {
			return NewErrorf(CodeValidation, "unparseable key %q", sc.Key)
		}
	}
	for _, id := range sc.RecentAudioIDs {
		if id <= 0 {
			return NewErrorf(CodeValidation, "recent audio id %d must be positive", id)
		}
	}
	sc.Normalize()

	s.writes.Lock(sc.UserID)
	defer s.writes.Unlock(sc.UserID)

	if err := s.contexts.Set(ctx, sc); err != nil {
		return err
	}
	s.logger.Debug().Int64("user_id", sc.UserID).Msg("context updated")
	return nil
}

// GetContext returns the stored session context, if any.
func (s *Service) GetContext(ctx context.Context, userID int64) (*SessionContext, bool, error) {
	if userID <= 0 {
		return nil, false, NewError(CodeValidation, "user_id must be positive")
	}
	return s.contexts.Get(ctx, userID)
}

// GetSuggestions runs one suggestion query. topK zero means the
// configured default; out-of-range values are rejected. The whole query
// runs under the configured deadline and returns no partial results
// when it expires.
func (s *Service) GetSuggestions(ctx context.Context, userID int64, topK int, mode Mode) (*Suggestions, error) {
	start := time.Now()

	if userID <= 0 {
		return nil, NewError(CodeValidation, "user_id must be positive")
	}
	if topK == 0 {
		topK = s.cfg.TopKDefault
	}
	if topK < 1 || topK > s.cfg.TopKMax {
		return nil, NewErrorf(CodeValidation, "top_k %d out of range [1, %d]", topK, s.cfg.TopKMax)
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	qlog := s.logger.With().
		Str("query_id", uuid.NewString()).
		Int64("user_id", userID).
		Str("mode", mode.String()).
		Logger()

	result, err := s.suggest(qctx, &qlog, userID, topK, mode)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = WrapError(CodeDeadlineExceeded, "suggestion query timed out", err)
		}
		if code, ok := CodeOf(err); ok {
			metrics.SuggestionErrors.WithLabelValues(string(code)).Inc()
		}
		return nil, err
	}

	source := ""
	if len(result.Suggestions) > 0 {
		source = string(result.Suggestions[0].Source)
	}
	metrics.ObserveSuggestion(mode.String(), source, time.Since(start))
	qlog.Debug().
		Int("results", len(result.Suggestions)).
		Dur("elapsed", time.Since(start)).
		Msg("suggestions served")
	return result, nil
}

// suggest assembles candidates and ranks them for one query.
func (s *Service) suggest(ctx context.Context, qlog *zerolog.Logger, userID int64, topK int, mode Mode) (*Suggestions, error) {
	sc, found, err := s.contexts.Get(ctx, userID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The context store degrades internally; any other error here
		// is unexpected, so serve the fallback rather than failing.
		qlog.Error().Err(err).Msg("context read failed; serving fallback")
		found = false
	}
	if !found {
		return s.fallback(userID, topK, mode), nil
	}

	seed, seedID, haveSeed := s.resolveSeed(sc)

	var cands []candidate
	switch {
	case haveSeed:
		pool := topK * s.cfg.KNNCandidateMultiplier
		if pool < s.cfg.MinCandidatePool {
			pool = s.cfg.MinCandidatePool
		}
		k := pool
		if seedID > 0 {
			k++ // the seed itself will be filtered out below
		}

		neighbors, err := s.index.KNN(ctx, userID, seed, k)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if n.AudioID == seedID {
				continue
			}
			c := candidate{audioID: n.AudioID, cosine: n.Similarity, hasCosine: true}
			if a, ok := s.index.Analysis(n.AudioID); ok {
				c.analysis = &a
			}
			cands = append(cands, c)
			if len(cands) == pool {
				break
			}
		}

	case mode == ModeRules:
		// Compatibility scoring needs no embeddings; rank the user's
		// completed analyses directly.
		for _, a := range s.index.ListUser(userID, 0) {
			if a.Status != StatusCompleted {
				continue
			}
			a := a
			cands = append(cands, candidate{audioID: a.AudioID, analysis: &a})
		}

	default:
		// No viable seed for the embedding path.
		return s.fallback(userID, topK, mode), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := rank(mode, sc, cands, topK)
	if len(ranked) == 0 {
		return s.fallback(userID, topK, mode), nil
	}
	return &Suggestions{Mode: mode.String(), Suggestions: ranked}, nil
}

// fallback serves the deterministic recency-based selection.
func (s *Service) fallback(userID int64, topK int, mode Mode) *Suggestions {
	return &Suggestions{
		Mode:        mode.String(),
		Suggestions: fallbackSuggestions(s.index, userID, topK),
	}
}

// resolveSeed picks the query vector: the most recent audio's embedding
// when it has one, otherwise the normalized mean of the embeddings
// found among the first PseudoVectorRecents recents. seedID is nonzero
// only when a single audio's own vector is used.
func (s *Service) resolveSeed(sc *SessionContext) (seed []float32, seedID int64, ok bool) {
	if len(sc.RecentAudioIDs) == 0 {
		return nil, 0, false
	}

	if e, found := s.index.Embedding(sc.RecentAudioIDs[0]); found {
		return e.Vector, e.AudioID, true
	}

	var sum []float64
	used := 0
	for _, id := range sc.RecentAudioIDs {
		if used == s.cfg.PseudoVectorRecents {
			break
		}
		e, found := s.index.Embedding(id)
		if !found {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(e.Vector))
		}
		if len(e.Vector) != len(sum) {
			continue
		}
		for i, v := range e.Vector {
			sum[i] += float64(v)
		}
		used++
	}
	if used == 0 {
		return nil, 0, false
	}

	var norm float64
	for _, v := range sum {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, 0, false
	}

	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v / norm)
	}
	return out, 0, true
}

// IngestAnalysis applies one extractor result, serialized per user.
func (s *Service) IngestAnalysis(ctx context.Context, req *IngestRequest) error {
	if req == nil {
		return NewError(CodeValidation, "nil ingest request")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writes.Lock(req.Analysis.UserID)
	defer s.writes.Unlock(req.Analysis.UserID)

	err := s.ingestor.Ingest(req)
	metrics.IngestResults.WithLabelValues(ingestResultLabel(err)).Inc()
	s.updateIndexGauges()
	return err
}

// ForgetAudio removes all recommendation state for an audio. Idempotent.
func (s *Service) ForgetAudio(ctx context.Context, audioID int64) error {
	if audioID <= 0 {
		return NewError(CodeValidation, "audio_id must be positive")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.index.Remove(audioID)
	s.updateIndexGauges()
	s.logger.Debug().Int64("audio_id", audioID).Msg("audio forgotten")
	return nil
}

// Rebuild replays completed analyses from the archive into the index.
// Replay is best-effort: entries that fail to apply are logged and
// skipped, since the index is rebuilt from scratch on every start.
func (s *Service) Rebuild(ctx context.Context, src AnalysisSource) error {
	start := time.Now()
	var replayed, skipped int

	err := src.StreamCompleted(ctx, func(e ReplayEntry) error {
		// Replay goes through the ingestor so archived rows face the
		// same fingerprint dedup and validation as live events.
		err := s.ingestor.Ingest(&IngestRequest{
			Analysis:    e.Analysis,
			Embedding:   e.Embedding,
			ModelID:     e.ModelID,
			Fingerprint: e.Fingerprint,
		})
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("audio_id", e.Analysis.AudioID).
				Msg("replay: entry rejected")
			skipped++
			return nil
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}

	s.updateIndexGauges()
	s.logger.Info().
		Int("replayed", replayed).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("index rebuilt from analysis archive")
	return nil
}

// Status returns current index statistics.
func (s *Service) Status() IndexStats {
	return s.index.Stats()
}

func (s *Service) updateIndexGauges() {
	stats := s.index.Stats()
	metrics.SetIndexSize(stats.Embeddings, stats.Analyses)
}

// ingestResultLabel maps an ingest error to its metric label.
func ingestResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch code, _ := CodeOf(err); code {
	case CodeDuplicateFingerprint:
		return "duplicate"
	case CodeDimensionMismatch:
		return "dimension_mismatch"
	case CodeCapacityExceeded:
		return "capacity"
	default:
		return "invalid"
	}
}
