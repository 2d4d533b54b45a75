package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates no quiz is published under the requested code.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is returned when a participant starts a quiz they already submitted.
	ErrForbidden = errors.New("attempt already completed")
	// ErrAlreadySubmitted is the expected outcome of losing the submission race.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrValidation marks a malformed request payload.
	ErrValidation = errors.New("validation failed")
	// ErrDeadlinePassed is returned when a submit arrives after deadline plus grace.
	ErrDeadlinePassed = errors.New("attempt deadline has passed")
	// ErrSessionNotFound is returned when submitting without a started attempt.
	ErrSessionNotFound = errors.New("attempt session not found")
	// ErrSubmissionNotFound is returned when no submission exists for a session.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrUnauthorized indicates a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError describes which part of a payload is malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError that matches ErrValidation.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
