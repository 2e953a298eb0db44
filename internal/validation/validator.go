// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package validation provides the shared request validator.
//
// A single validator.Validate instance is expensive to build (struct
// caching, tag registration), so the package holds one and hands it out
// via Get().
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/cadenza-audio/cadenza/internal/recommend"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// Get returns the shared validator, building it on first use.
func Get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())

		// musical_key accepts key signatures like "C major", "F# minor"
		// or "Dbm". The empty string passes; pair with required to
		// force a value.
		_ = instance.RegisterValidation("musical_key", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			_, ok := recommend.ParseKey(s)
			return ok
		})
	})
	return instance
}

// Struct validates a struct with the shared validator.
func Struct(s any) error {
	return Get().Struct(s)
}

// Message flattens a validation error into one human-readable line.
// Non-validation errors pass through unchanged.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

// fieldMessage renders one field error without leaking struct paths.
func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "musical_key":
		return fmt.Sprintf("%s is not a recognizable key signature", field)
	case "dive":
		return fmt.Sprintf("%s contains an invalid element", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
