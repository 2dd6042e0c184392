// Package revision defines the domain model for versioned program revisions.
package revision

import (
	"errors"
	"time"

	"github.com/dshills/progrev/pkg/domain/types"
)

// Common revision errors
var (
	// ErrNotFound is returned when a program or revision cannot be found.
	ErrNotFound = errors.New("revision not found")
	// ErrInvalidOperation is returned when an operation targets the current
	// revision in a way that would violate the revision lifecycle, such as
	// deleting it or rolling back to it.
	ErrInvalidOperation = errors.New("invalid revision operation")
	// ErrConflict is returned when two writers race to create the same
	// next version for a program.
	ErrConflict = errors.New("revision version conflict")
)

// Revision is one immutable content snapshot of a program. Only the
// IsCurrent flag ever changes after creation; a revision is never physically
// removed while it is current.
type Revision struct {
	ID         types.RevisionID
	ProgramID  types.ProgramID
	Version    Version
	ContentRef types.ContentRef
	Comment    string
	CreatedBy  string
	CreatedAt  time.Time
	IsCurrent  bool
}
