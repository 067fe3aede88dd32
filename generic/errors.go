/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to a sentinel so callers can branch with
  errors.Is and still get details with errors.As.

ERROR CATEGORIES:
  1. ValidationError    - malformed dates, missing approver mapping, day-count mismatch
  2. AuthorizationError - actor is not the assigned approver/requester
  3. ConflictError      - conditional commit missed; carries the current status
  4. LockedError        - requester action after an approval level acted
  5. NotFoundError      - unknown profile, request, contract

  None of these are fatal to the process. Notification failures never
  surface here: they are logged and dropped by the notify package.

USAGE:
  if errors.Is(err, generic.ErrConflict) {
      var ce *generic.ConflictError
      errors.As(err, &ce)
      refresh(ce.Current)
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the actor is not the assigned approver
	// or requester for the action.
	ErrUnauthorized = errors.New("actor not authorized for this action")

	// ErrConflict is returned when a conditional status transition matched no
	// record because another decision already landed.
	ErrConflict = errors.New("conflicting concurrent decision")

	// ErrLocked is returned when a requester tries to edit or cancel a request
	// after any approval level has acted.
	ErrLocked = errors.New("request is locked")

	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation marks stored state that no legal transition sequence
	// could have produced.
	ErrInvariantViolation = errors.New("workflow invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a shorthand used by validators.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports an actor acting outside its assignment.
type AuthorizationError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Action, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// ConflictError is returned by the concurrency guard. Current is the
// authoritative status at the time of the miss.
type ConflictError struct {
	ID       string
	Expected string
	Current  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %s: expected status %s, current status %s", e.ID, e.Expected, e.Current)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// LockedError is returned by the requester-side lock guard.
type LockedError struct {
	ID     string
	Status string
	Reason string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("request %s is locked (%s): %s", e.ID, e.Status, e.Reason)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// NotFoundError names the missing thing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrLocked)
}

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
