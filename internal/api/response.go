// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package api exposes the recommendation service over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cadenza-audio/cadenza/internal/logging"
	"github.com/cadenza-audio/cadenza/internal/recommend"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encode failed")
	}
}

// writeError writes a classified error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps a service error onto HTTP.
func writeServiceError(w http.ResponseWriter, err error) {
	code, ok := recommend.CodeOf(err)
	if !ok {
		logging.Error().Err(err).Msg("unclassified service error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	var e *recommend.Error
	message := err.Error()
	if errors.As(err, &e) {
		message = e.Message
	}

	switch code {
	case recommend.CodeValidation, recommend.CodeDimensionMismatch:
		writeError(w, http.StatusBadRequest, string(code), message)
	case recommend.CodeDeadlineExceeded:
		writeError(w, http.StatusGatewayTimeout, string(code), message)
	case recommend.CodeDuplicateFingerprint, recommend.CodeCapacityExceeded:
		writeError(w, http.StatusConflict, string(code), message)
	case recommend.CodeBackendUnavailable:
		writeError(w, http.StatusServiceUnavailable, string(code), message)
	default:
		writeError(w, http.StatusInternalServerError, string(code), message)
	}
}
