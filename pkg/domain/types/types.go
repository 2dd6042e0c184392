// Package types defines core domain type aliases and identifiers for progrev.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ProgramID is a unique identifier for an NC program.
type ProgramID string

// String returns the string representation of a ProgramID.
func (id ProgramID) String() string {
	return string(id)
}

// IsZero returns true if the ProgramID is the zero value.
func (id ProgramID) IsZero() bool {
	return id == ""
}

// RevisionID is a unique identifier for a program revision.
type RevisionID string

// NewRevisionID generates a new unique revision ID.
func NewRevisionID() RevisionID {
	return RevisionID(uuid.NewString())
}

// String returns the string representation of a RevisionID.
func (id RevisionID) String() string {
	return string(id)
}

// IsZero returns true if the RevisionID is the zero value.
func (id RevisionID) IsZero() bool {
	return id == ""
}

// ContentRef is an opaque handle into the content-addressable blob store.
type ContentRef string

// String returns the string representation of a ContentRef.
func (r ContentRef) String() string {
	return string(r)
}

// EntityType tags the kind of entity a workflow state applies to
// (e.g. "program", "inspection_plan"). New entity kinds are onboarded by
// registering a type tag, not by extending a type hierarchy.
type EntityType string

// EntityRef identifies a single workflow-governed entity as a tagged pair.
type EntityRef struct {
	Type EntityType
	ID   string
}

// String returns the "type/id" form used in logs and errors.
func (e EntityRef) String() string {
	return fmt.Sprintf("%s/%s", e.Type, e.ID)
}

// IsZero returns true if either half of the pair is missing.
func (e EntityRef) IsZero() bool {
	return e.Type == "" || e.ID == ""
}
