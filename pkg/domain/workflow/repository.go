package workflow

import (
	"context"

	"github.com/dshills/progrev/pkg/domain/types"
)

// Repository defines persistence operations for workflow state pointers and
// the append-only transition history.
type Repository interface {
	// SyncDefinition persists the configured state and transition catalogs.
	// Called once at startup; replaces any previously stored catalog.
	SyncDefinition(ctx context.Context, states []State, transitions []Transition) error

	// CurrentState returns the entity's current state pointer, or
	// ErrNotFound if the entity has no recorded state.
	CurrentState(ctx context.Context, entity types.EntityRef) (StateCode, error)

	// InitializeState records the initial state for a newly created entity.
	// Assigning the initial state is the caller's responsibility, not the
	// engine's.
	InitializeState(ctx context.Context, entity types.EntityRef, state StateCode) error

	// CompareAndSetState atomically moves the entity's state pointer from
	// the observed state to the new one. Returns ErrStaleState if another
	// writer changed the pointer concurrently.
	CompareAndSetState(ctx context.Context, entity types.EntityRef, from, to StateCode) error

	// AppendHistory appends an immutable audit record. History is never
	// updated or deleted.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// History returns audit records for an entity ordered newest first.
	// A limit of 0 means no limit.
	History(ctx context.Context, entity types.EntityRef, limit, offset int) ([]*HistoryEntry, error)
}
