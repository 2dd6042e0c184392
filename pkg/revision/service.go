// Package revision implements the revision store: ordered, versioned,
// immutable revisions per program with exactly one current revision at a
// time. Raw content lives in a blob collaborator; this service stores only
// refs.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dshills/progrev/internal/logging"
	"github.com/dshills/progrev/pkg/diff"
	"github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
	operrors "github.com/dshills/progrev/pkg/errors"
)

// ErrContentTooLarge is returned when diff input exceeds the configured
// line limit. Diff cost scales with input size, so oversized content is
// rejected rather than computed unbounded inline.
var ErrContentTooLarge = errors.New("content too large to diff")

// DefaultMaxDiffLines bounds inline diff computation per side.
const DefaultMaxDiffLines = 100_000

// Service coordinates the revision repository and the blob store.
type Service struct {
	repo         revision.Repository
	blobs        revision.BlobStore
	logger       *slog.Logger
	maxDiffLines int

	// Per-program locks serialize concurrent CreateRevision calls so two
	// writers cannot compute the same next version.
	locks sync.Map // types.ProgramID -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMaxDiffLines overrides the diff input bound.
func WithMaxDiffLines(n int) Option {
	return func(s *Service) { s.maxDiffLines = n }
}

// NewService creates a revision service.
func NewService(repo revision.Repository, blobs revision.BlobStore, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		blobs:        blobs,
		logger:       logging.NewNop(),
		maxDiffLines: DefaultMaxDiffLines,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRevision stores content as a new immutable revision and makes it
// the program's current revision. The first revision of a program is always
// 1.0.0 regardless of the requested bump.
func (s *Service) CreateRevision(ctx context.Context, programID types.ProgramID, content []byte, bump revision.BumpKind, comment, author string) (*revision.Revision, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("%w: program ID cannot be empty", revision.ErrNotFound)
	}
	if !bump.Valid() {
		return nil, fmt.Errorf("invalid version bump: %q", bump)
	}

	exists, err := s.repo.ProgramExists(ctx, programID)
	if err != nil {
		return nil, operrors.NewOperationalError("create revision", programID.String(), "", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: unknown program %s", revision.ErrNotFound, programID)
	}

	mu := s.programLock(programID)
	mu.Lock()
	defer mu.Unlock()

	next := revision.Initial
	current, err := s.repo.Current(ctx, programID)
	switch {
	case err == nil:
		next, err = current.Version.Next(bump)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, revision.ErrNotFound):
		// First revision for this program
	default:
		return nil, operrors.NewOperationalError("create revision", programID.String(), "", err)
	}

	ref, err := s.blobs.Put(ctx, content)
	if err != nil {
		return nil, operrors.NewOperationalError("store revision content", programID.String(), "", err)
	}

	rev := &revision.Revision{
		ID:         types.NewRevisionID(),
		ProgramID:  programID,
		Version:    next,
		ContentRef: ref,
		Comment:    comment,
		CreatedBy:  author,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.CreateAsCurrent(ctx, rev); err != nil {
		if errors.Is(err, revision.ErrConflict) {
			return nil, err
		}
		return nil, operrors.NewOperationalError("create revision", programID.String(), "", err)
	}

	s.logger.Info("revision created",
		"program", programID.String(),
		"version", rev.Version.String(),
		"author", author,
	)

	return rev, nil
}

// ListRevisions returns all revisions for a program, newest version first.
// Restartable: no cursor state is held between calls.
func (s *Service) ListRevisions(ctx context.Context, programID types.ProgramID) ([]*revision.Revision, error) {
	revs, err := s.repo.List(ctx, programID)
	if err != nil {
		return nil, operrors.NewOperationalError("list revisions", programID.String(), "", err)
	}
	return revs, nil
}

// GetRevision returns the revision with the exact version tuple.
func (s *Service) GetRevision(ctx context.Context, programID types.ProgramID, v revision.Version) (*revision.Revision, error) {
	rev, err := s.repo.GetByVersion(ctx, programID, v)
	if err != nil {
		if errors.Is(err, revision.ErrNotFound) {
			return nil, fmt.Errorf("%w: program %s has no revision %s", revision.ErrNotFound, programID, v)
		}
		return nil, operrors.NewOperationalError("get revision", programID.String(), "", err)
	}
	return rev, nil
}

// GetContent returns the raw content of a revision.
func (s *Service) GetContent(ctx context.Context, programID types.ProgramID, v revision.Version) ([]byte, error) {
	rev, err := s.GetRevision(ctx, programID, v)
	if err != nil {
		return nil, err
	}
	content, err := s.blobs.Get(ctx, rev.ContentRef)
	if err != nil {
		return nil, operrors.NewOperationalError("load revision content", programID.String(), "", err)
	}
	return content, nil
}

// Rollback repoints the current flag to the target version. It does not
// create a new revision row or bump the version counter; the target must
// exist and must not already be current.
func (s *Service) Rollback(ctx context.Context, programID types.ProgramID, target revision.Version, author string) (*revision.Revision, error) {
	rev, err := s.GetRevision(ctx, programID, target)
	if err != nil {
		return nil, err
	}
	if rev.IsCurrent {
		return nil, fmt.Errorf("%w: revision %s is already current", revision.ErrInvalidOperation, target)
	}

	if err := s.repo.SetCurrent(ctx, programID, rev.ID); err != nil {
		if errors.Is(err, revision.ErrNotFound) || errors.Is(err, revision.ErrInvalidOperation) {
			return nil, err
		}
		return nil, operrors.NewOperationalError("rollback revision", programID.String(), "", err)
	}

	s.logger.Info("revision rolled back",
		"program", programID.String(),
		"target", target.String(),
		"author", author,
	)

	rev.IsCurrent = true
	return rev, nil
}

// DeleteRevision permanently removes a non-current revision and, when no
// other revision shares its content, the underlying blob. Irreversible;
// callers must obtain explicit confirmation upstream.
func (s *Service) DeleteRevision(ctx context.Context, programID types.ProgramID, id types.RevisionID) error {
	rev, err := s.repo.GetByID(ctx, programID, id)
	if err != nil {
		if errors.Is(err, revision.ErrNotFound) {
			return err
		}
		return operrors.NewOperationalError("delete revision", programID.String(), "", err)
	}
	if rev.IsCurrent {
		return fmt.Errorf("%w: cannot delete the current revision", revision.ErrInvalidOperation)
	}

	if err := s.repo.Delete(ctx, programID, id); err != nil {
		if errors.Is(err, revision.ErrNotFound) || errors.Is(err, revision.ErrInvalidOperation) {
			return err
		}
		return operrors.NewOperationalError("delete revision", programID.String(), "", err)
	}

	inUse, err := s.repo.ContentRefInUse(ctx, rev.ContentRef)
	if err != nil {
		return operrors.NewOperationalError("delete revision content", programID.String(), "", err)
	}
	if !inUse {
		if err := s.blobs.Delete(ctx, rev.ContentRef); err != nil {
			return operrors.NewOperationalError("delete revision content", programID.String(), "", err)
		}
	}

	s.logger.Info("revision deleted",
		"program", programID.String(),
		"revision", id.String(),
		"version", rev.Version.String(),
	)

	return nil
}

// Diff computes the line diff between two revisions of a program.
func (s *Service) Diff(ctx context.Context, programID types.ProgramID, from, to revision.Version) (*diff.Result, error) {
	oldContent, err := s.GetContent(ctx, programID, from)
	if err != nil {
		return nil, err
	}
	newContent, err := s.GetContent(ctx, programID, to)
	if err != nil {
		return nil, err
	}

	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)
	if len(oldLines) > s.maxDiffLines || len(newLines) > s.maxDiffLines {
		return nil, fmt.Errorf("%w: limit is %d lines", ErrContentTooLarge, s.maxDiffLines)
	}

	result := diff.Compare(oldLines, newLines)
	return &result, nil
}

func (s *Service) programLock(programID types.ProgramID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(programID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// splitLines splits content into lines, tolerating CRLF endings and a
// trailing newline. Empty content yields no lines.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
