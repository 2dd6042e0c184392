package errors

import (
	"fmt"
	"time"
)

// OperationalError wraps persistence-layer failures with the context needed
// to reproduce them: the operation name, the program or entity involved, and
// when the failure occurred. Business-rule failures use the sentinel errors
// in the domain packages; this type is for everything else (connectivity,
// constraint violations, blob I/O).
type OperationalError struct {
	Operation string                 // What operation was being performed
	ProgramID string                 // Which program (if applicable)
	EntityRef string                 // Which workflow entity (if applicable)
	Timestamp time.Time              // When the error occurred
	Attrs     map[string]interface{} // Additional context (optional)
	Cause     error                  // Underlying error
}

// NewOperationalError creates an OperationalError wrapping a cause.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalError(operation, programID, entityRef string, cause error) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation: operation,
		ProgramID: programID,
		EntityRef: entityRef,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewOperationalErrorWithAttrs creates an OperationalError with additional
// context attributes.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalErrorWithAttrs(operation, programID, entityRef string, cause error, attrs map[string]interface{}) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation: operation,
		ProgramID: programID,
		EntityRef: entityRef,
		Timestamp: time.Now(),
		Attrs:     attrs,
		Cause:     cause,
	}
}

// Error implements the error interface.
//
// Format: "[timestamp] operation: program={id} entity={ref}: {cause}"
// Empty identifiers are omitted from the message.
func (e *OperationalError) Error() string {
	if e == nil {
		return "<nil OperationalError>"
	}

	msg := fmt.Sprintf("[%s] %s", e.Timestamp.Format(time.RFC3339), e.Operation)
	if e.ProgramID != "" {
		msg += fmt.Sprintf(": program=%s", e.ProgramID)
	}
	if e.EntityRef != "" {
		msg += fmt.Sprintf(": entity=%s", e.EntityRef)
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
