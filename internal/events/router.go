// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cadenza-audio/cadenza/internal/analysisdb"
	"github.com/cadenza-audio/cadenza/internal/metrics"
	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// NewRouter builds the message router delivering extractor events into
// the recommendation service. Undecodable messages are acked and
// counted as poison; classified ingest rejections are terminal and
// acked too, since redelivery cannot fix them. archive may be nil for
// deployments without durable analysis storage.
func NewRouter(
	sub message.Subscriber,
	svc *recommend.Service,
	archive *analysisdb.Archive,
	logger zerolog.Logger,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 15 * time.Second,
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(middleware.Recoverer)

	h := &handlers{svc: svc, archive: archive, logger: logger}

	router.AddNoPublisherHandler(
		"analysis-completed-ingest",
		TopicAnalysisCompleted,
		sub,
		h.handleAnalysisCompleted,
	)
	router.AddNoPublisherHandler(
		"audio-deleted-forget",
		TopicAudioDeleted,
		sub,
		h.handleAudioDeleted,
	)
	return router, nil
}

type handlers struct {
	svc     *recommend.Service
	archive *analysisdb.Archive
	logger  zerolog.Logger
}

func (h *handlers) handleAnalysisCompleted(msg *message.Message) error {
	var e AnalysisCompleted
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		h.poison(TopicAnalysisCompleted, msg, err)
		return nil
	}

	status, ok := recommend.ParseAnalysisStatus(e.Status)
	if !ok {
		h.poison(TopicAnalysisCompleted, msg, recommend.NewErrorf(
			recommend.CodeValidation, "unknown status %q", e.Status))
		return nil
	}

	record := recommend.AnalysisRecord{
		AudioID:   e.AudioID,
		UserID:    e.UserID,
		Tempo:     e.Tempo,
		Key:       e.Key,
		Genres:    e.Genres,
		Moods:     e.Moods,
		Status:    status,
		CreatedAt: e.CreatedAt,
	}

	err := h.svc.IngestAnalysis(msg.Context(), &recommend.IngestRequest{
		Analysis:    record,
		Embedding:   e.Embedding,
		ModelID:     e.ModelID,
		Fingerprint: e.Fingerprint,
		Reanalyze:   e.Reanalyze,
	})
	if err != nil {
		if code, classified := recommend.CodeOf(err); classified {
			h.logger.Warn().Err(err).
				Int64("audio_id", e.AudioID).
				Str("code", string(code)).
				Msg("analysis event rejected")
			metrics.EventsConsumed.WithLabelValues(TopicAnalysisCompleted, "rejected").Inc()
			return nil
		}
		metrics.EventsConsumed.WithLabelValues(TopicAnalysisCompleted, "error").Inc()
		return err
	}

	// Archive only rows the ingestor admitted. Writing earlier would let
	// a rejected duplicate resurface through cold-start replay. The
	// write itself is best-effort: losing a row only weakens the next
	// replay, while a failed ingest loses live state.
	if h.archive != nil && status == recommend.StatusCompleted {
		err := h.archive.Save(msg.Context(), recommend.ReplayEntry{
			Analysis:    record,
			Embedding:   e.Embedding,
			ModelID:     e.ModelID,
			Fingerprint: e.Fingerprint,
		})
		if err != nil {
			h.logger.Error().Err(err).
				Int64("audio_id", e.AudioID).
				Msg("analysis archive write failed")
		}
	}

	metrics.EventsConsumed.WithLabelValues(TopicAnalysisCompleted, "ok").Inc()
	return nil
}

func (h *handlers) handleAudioDeleted(msg *message.Message) error {
	var e AudioDeleted
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		h.poison(TopicAudioDeleted, msg, err)
		return nil
	}

	if err := h.svc.ForgetAudio(msg.Context(), e.AudioID); err != nil {
		if _, classified := recommend.CodeOf(err); classified {
			h.poison(TopicAudioDeleted, msg, err)
			return nil
		}
		metrics.EventsConsumed.WithLabelValues(TopicAudioDeleted, "error").Inc()
		return err
	}

	if h.archive != nil {
		if err := h.archive.Delete(msg.Context(), e.AudioID); err != nil {
			h.logger.Error().Err(err).
				Int64("audio_id", e.AudioID).
				Msg("analysis archive delete failed")
		}
	}

	metrics.EventsConsumed.WithLabelValues(TopicAudioDeleted, "ok").Inc()
	return nil
}

func (h *handlers) poison(topic string, msg *message.Message, err error) {
	h.logger.Error().Err(err).
		Str("message_id", msg.UUID).
		Str("topic", topic).
		Msg("poison message dropped")
	metrics.EventsConsumed.WithLabelValues(topic, "poison").Inc()
}
