// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cadenza-audio/cadenza/internal/analysisdb"
	"github.com/cadenza-audio/cadenza/internal/recommend"
	"github.com/cadenza-audio/cadenza/internal/recommend/contextcache"
	"github.com/cadenza-audio/cadenza/internal/validation"
)

// userHeader identifies the caller. The upstream auth layer resolves
// credentials and forwards the numeric user ID here.
const userHeader = "X-Cadenza-User"

// Handlers holds the HTTP handler set.
type Handlers struct {
	svc      *recommend.Service
	contexts *contextcache.Store
	archive  *analysisdb.Archive
	logger   zerolog.Logger
}

// NewHandlers creates the handler set. archive may be nil.
func NewHandlers(
	svc *recommend.Service,
	contexts *contextcache.Store,
	archive *analysisdb.Archive,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{svc: svc, contexts: contexts, archive: archive, logger: logger}
}

// userID extracts the caller's user ID from the request headers.
func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(userHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SetContext handles POST /recommendations/context.
func (h *Handlers) SetContext(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"missing or invalid "+userHeader+" header")
		return
	}

	var req setContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"malformed JSON body")
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			validation.Message(err))
		return
	}

	if err := h.svc.SetContext(r.Context(), req.Context.toDomain(uid)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetContext handles GET /recommendations/context.
func (h *Handlers) GetContext(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"missing or invalid "+userHeader+" header")
		return
	}

	sc, found, err := h.svc.GetContext(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "no active session context")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": sc})
}

// GetTop handles GET /recommendations/top.
func (h *Handlers) GetTop(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"missing or invalid "+userHeader+" header")
		return
	}

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
				"top_k must be an integer")
			return
		}
		topK = v
	}

	mode, ok := recommend.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"mode must be one of: fusion, rules, vector")
		return
	}

	result, err := h.svc.GetSuggestions(r.Context(), uid, topK, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteAudio handles DELETE /recommendations/audio/{audioID}.
func (h *Handlers) DeleteAudio(w http.ResponseWriter, r *http.Request) {
	audioID, err := strconv.ParseInt(chi.URLParam(r, "audioID"), 10, 64)
	if err != nil || audioID <= 0 {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"audio id must be a positive integer")
		return
	}

	if err := h.svc.ForgetAudio(r.Context(), audioID); err != nil {
		writeServiceError(w, err)
		return
	}
	if h.archive != nil {
		if err := h.archive.Delete(r.Context(), audioID); err != nil {
			h.logger.Error().Err(err).Int64("audio_id", audioID).
				Msg("analysis archive delete failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /recommendations/ingest, the synchronous path
// for deployments without the event bus.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"missing or invalid "+userHeader+" header")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"malformed JSON body")
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			validation.Message(err))
		return
	}

	status, ok := recommend.ParseAnalysisStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, string(recommend.CodeValidation),
			"status must be one of: pending, running, completed, failed")
		return
	}

	record := recommend.AnalysisRecord{
		AudioID:   req.AudioID,
		UserID:    uid,
		Tempo:     req.Tempo,
		Key:       req.Key,
		Genres:    req.Genres,
		Moods:     req.Moods,
		Status:    status,
		CreatedAt: req.CreatedAt,
	}

	err := h.svc.IngestAnalysis(r.Context(), &recommend.IngestRequest{
		Analysis:    record,
		Embedding:   req.Embedding,
		ModelID:     req.ModelID,
		Fingerprint: req.Fingerprint,
		Reanalyze:   req.Reanalyze,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if h.archive != nil && status == recommend.StatusCompleted {
		err := h.archive.Save(r.Context(), recommend.ReplayEntry{
			Analysis:    record,
			Embedding:   req.Embedding,
			ModelID:     req.ModelID,
			Fingerprint: req.Fingerprint,
		})
		if err != nil {
			h.logger.Error().Err(err).Int64("audio_id", req.AudioID).
				Msg("analysis archive write failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /recommendations/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Index:            h.svc.Status(),
		ContextsDegraded: h.contexts != nil && h.contexts.Degraded(),
	})
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
