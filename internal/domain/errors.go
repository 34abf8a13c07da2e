package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the workflow. Stores return ErrNotFound / ErrConflict
// (optionally wrapped); services translate everything else into one of these classes
// so callers can branch with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("concurrent modification, reload and retry")
	ErrCodeIncorrect      = errors.New("security code is incorrect")
	ErrCodeExpired        = errors.New("security code has expired")
	ErrCodeAlreadyUsed    = errors.New("security code has already been used")
	ErrApprovalFailure    = errors.New("approval failed")
	ErrArtifactGeneration = errors.New("approval artifact generation failed")
	ErrSecurityInvariant  = errors.New("security invariant violation")
	ErrTooManyAttempts    = errors.New("too many failed attempts")
)

// ValidationError carries a human-readable reason for a correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports a transition attempted from a state that does not allow it.
type TransitionError struct {
	Transition Transition
	From       RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %q", e.Transition, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ApprovalError is returned when a mandatory approval step fails. Compensated
// reports whether entities created earlier in the same run were removed.
type ApprovalError struct {
	Step        string
	Err         error
	Compensated bool
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approval step %q failed: %v", e.Step, e.Err)
}

func (e *ApprovalError) Unwrap() []error { return []error{ErrApprovalFailure, e.Err} }

// ArtifactError is a non-fatal failure of a best-effort approval step.
type ArtifactError struct {
	Step string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact step %q failed: %v", e.Step, e.Err)
}

func (e *ArtifactError) Unwrap() []error { return []error{ErrArtifactGeneration, e.Err} }

// InvariantError reports a placeholder or empty identity about to be persisted.
type InvariantError struct {
	Field string
	Value string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("refusing to persist %s=%q", e.Field, e.Value)
}

func (e *InvariantError) Unwrap() error { return ErrSecurityInvariant }

// IsCorrectable reports whether err is a caller-correctable error that should be
// re-prompted rather than logged as an incident.
func IsCorrectable(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCodeIncorrect) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrTooManyAttempts)
}
