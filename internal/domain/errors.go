package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")

	// ErrInvalidTransition means the requested target status is not reachable
	// from the current status per the fixed transition table. Distinct from
	// ErrUnauthorized: "wrong time", not "wrong person".
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSequenceExhausted means the allocator could not produce a unique
	// sequence value within the retry bound. The enclosing creation fails.
	ErrSequenceExhausted = errors.New("sequence allocation exhausted")

	// ErrAuditWriteFailed means the history entry for a transition could not
	// be recorded. The transition must be reported as not applied.
	ErrAuditWriteFailed = errors.New("audit write failed")
)

// TransitionError reports a table-illegal transition attempt with enough
// detail for the caller to act on.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AuthorizationError reports a table-legal transition attempted by an actor
// without the required role/service binding.
type AuthorizationError struct {
	Action          Action
	RequiredService string
	ActorService    string
	Reason          string
}

func (e *AuthorizationError) Error() string {
	if e.RequiredService != "" {
		return fmt.Sprintf("action %s reserved to service %q (actor service %q): %s",
			e.Action, e.RequiredService, e.ActorService, e.Reason)
	}
	return fmt.Sprintf("action %s: %s", e.Action, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// ConflictError reports an optimistic-concurrency loss: the document's status
// changed between load and update.
type ConflictError struct {
	DocumentID string
	Expected   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document %s no longer in status %s", e.DocumentID, e.Expected)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}
