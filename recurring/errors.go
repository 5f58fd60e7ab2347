/*
errors.go - Centralized error types for recurring accounts

ERROR CATEGORIES:
  1. Store errors - duplicate instances, missing records, unreachable backend
  2. Validation errors - user input rejected at account creation
  3. Template errors - a single template failed during a run, or could not
     be decoded from the store (MalformedTemplatesError)

PROPAGATION:
  TemplateError never leaves Projector.Run: it is logged and counted.
  Only store-level failures that happen before templates are processed
  (ping, listing) fail the run.
*/
package recurring

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateInstance is returned by InsertInstance when an instance with
	// the same DedupKey already exists. Expected when runs overlap.
	ErrDuplicateInstance = errors.New("duplicate recurring instance")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount is returned when an account ID already exists.
	ErrDuplicateAccount = errors.New("account already exists")

	ErrInvalidKind      = errors.New("invalid account kind")
	ErrInvalidFrequency = errors.New("invalid recurrence frequency")
	ErrInvalidInterval  = errors.New("invalid recurrence interval")

	// ErrStoreUnavailable wraps failures to reach the backing store at all.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TemplateError carries the template that failed inside a run.
type TemplateError struct {
	TemplateID string
	Kind       Kind
	Op         string // "lookup", "insert"
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s template %s: %s: %v", e.Kind, e.TemplateID, e.Op, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// MalformedRow is a stored template that could not be decoded.
type MalformedRow struct {
	ID  string
	Err error
}

// MalformedTemplatesError is returned by ListTemplates together with the
// templates that did decode. The projector counts each row as failed and
// keeps going.
type MalformedTemplatesError struct {
	Kind Kind
	Rows []MalformedRow
}

func (e *MalformedTemplatesError) Error() string {
	return fmt.Sprintf("%d malformed %s templates", len(e.Rows), e.Kind)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrDuplicateAccount)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
