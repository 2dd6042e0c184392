package revision

import (
	"context"

	"github.com/dshills/progrev/pkg/domain/types"
)

// Repository defines persistence operations for program revisions.
//
// CreateAsCurrent and SetCurrent must each execute as a single atomic unit
// against the revision set of one program: both jointly clear the previous
// current flag and set the new one, and partial application would violate
// the at-most-one-current invariant.
type Repository interface {
	// RegisterProgram records a program so revisions can be attached to it.
	// Registering an already-known program is a no-op.
	RegisterProgram(ctx context.Context, id types.ProgramID, name string) error

	// ProgramExists reports whether a program is known.
	ProgramExists(ctx context.Context, id types.ProgramID) (bool, error)

	// CreateAsCurrent inserts a new revision and atomically makes it the
	// program's current revision. Returns ErrConflict if a revision with
	// the same version tuple already exists for the program.
	CreateAsCurrent(ctx context.Context, rev *Revision) error

	// Current returns the program's current revision, or ErrNotFound if the
	// program has no revisions.
	Current(ctx context.Context, programID types.ProgramID) (*Revision, error)

	// List returns all revisions for a program ordered newest version first.
	List(ctx context.Context, programID types.ProgramID) ([]*Revision, error)

	// GetByVersion returns the revision with the exact version tuple, or
	// ErrNotFound if absent.
	GetByVersion(ctx context.Context, programID types.ProgramID, v Version) (*Revision, error)

	// GetByID returns the revision with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, programID types.ProgramID, id types.RevisionID) (*Revision, error)

	// SetCurrent atomically clears the current flag on the existing current
	// revision and sets it on the target.
	SetCurrent(ctx context.Context, programID types.ProgramID, id types.RevisionID) error

	// Delete permanently removes a non-current revision record. The caller
	// is responsible for removing the revision's blob content.
	Delete(ctx context.Context, programID types.ProgramID, id types.RevisionID) error

	// ContentRefInUse reports whether any remaining revision references the
	// given blob. Content-addressed blobs may be shared between revisions
	// with identical content, so one must not be removed while referenced.
	ContentRefInUse(ctx context.Context, ref types.ContentRef) (bool, error)
}

// BlobStore holds raw revision content, addressed by an opaque ContentRef.
// The engine never stores file bytes itself.
type BlobStore interface {
	// Put stores content and returns its ref. Storing identical content
	// twice returns the same ref.
	Put(ctx context.Context, content []byte) (types.ContentRef, error)

	// Get retrieves the content for a ref.
	Get(ctx context.Context, ref types.ContentRef) ([]byte, error)

	// Delete removes the content for a ref.
	Delete(ctx context.Context, ref types.ContentRef) error
}
