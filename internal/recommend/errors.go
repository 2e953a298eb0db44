// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import (
	"errors"
	"fmt"
)

// Code classifies an error for API consumers. Codes are stable wire
// strings; messages are free-form.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input.
	CodeValidation Code = "validation_error"
	// CodeDimensionMismatch marks an embedding of the wrong width.
	CodeDimensionMismatch Code = "dimension_mismatch"
	// CodeCapacityExceeded marks a write past the per-user entry cap.
	CodeCapacityExceeded Code = "capacity_exceeded"
	// CodeDeadlineExceeded marks a suggestion query that ran out of time.
	CodeDeadlineExceeded Code = "deadline_exceeded"
	// CodeDuplicateFingerprint marks an ingest whose fingerprint already
	// belongs to another audio of the same user.
	CodeDuplicateFingerprint Code = "duplicate_fingerprint"
	// CodeBackendUnavailable marks the first failure of the remote
	// context backend before the store latches to its in-process map.
	CodeBackendUnavailable Code = "backend_unavailable"
)

// Error is a classified error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a classified error with a formatted message.
func NewErrorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a classified error around a cause.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification of an error. Unclassified errors
// return ok=false.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
