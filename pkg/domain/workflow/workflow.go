// Package workflow defines the domain model for the entity-agnostic
// approval lifecycle: states, transitions, and the audited history of
// state changes.
package workflow

import (
	"errors"
	"time"

	"github.com/dshills/progrev/pkg/domain/types"
)

// Common workflow errors
var (
	// ErrNotFound is returned when an entity has no recorded workflow state.
	ErrNotFound = errors.New("workflow state not found")
	// ErrInvalidTransition is returned when no configured edge connects the
	// entity's current state to the requested state.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrReasonRequired is returned when a transition requires a reason and
	// none was supplied.
	ErrReasonRequired = errors.New("transition reason required")
	// ErrStaleState is returned when a concurrent writer changed the
	// entity's state between read and write. Callers should re-fetch the
	// available transitions and retry.
	ErrStaleState = errors.New("stale workflow state")
	// ErrGuardRejected is returned when a transition's guard expression
	// evaluates to false for the supplied context.
	ErrGuardRejected = errors.New("transition guard rejected")
)

// StateCode names a workflow stage (e.g. "draft", "released").
type StateCode string

// String returns the string representation of a StateCode.
func (c StateCode) String() string {
	return string(c)
}

// State is a named stage in an entity's approval lifecycle. The state
// catalog is loaded once from configuration and is read-only at runtime.
type State struct {
	Code        StateCode
	DisplayName string
	Description string
	Terminal    bool
}

// Transition is a configured, directed, permitted edge between two states.
// Any edge outside the configured set is illegal.
type Transition struct {
	From           StateCode
	To             StateCode
	RequiresReason bool
	// Guard is an optional boolean expression evaluated against a
	// caller-supplied context map. An empty guard always passes.
	Guard string
}

// HistoryEntry is an immutable audit record of one state change.
type HistoryEntry struct {
	ID        string
	Entity    types.EntityRef
	FromState StateCode
	ToState   StateCode
	Reason    string
	ChangedBy string
	CreatedAt time.Time
}
