package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
)

func newTestRevisionRepo(t *testing.T) *SQLiteRevisionRepository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "progrev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLiteRevisionRepository(db)
}

func makeRevision(programID types.ProgramID, v revision.Version, ref types.ContentRef) *revision.Revision {
	return &revision.Revision{
		ID:         types.NewRevisionID(),
		ProgramID:  programID,
		Version:    v,
		ContentRef: ref,
		CreatedBy:  "tester",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestRegisterProgramIdempotent(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	exists, err := repo.ProgramExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ProgramExists(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateAsCurrentFlipsPreviousCurrent(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	first := makeRevision("p1", revision.Version{Major: 1}, "ref-a")
	require.NoError(t, repo.CreateAsCurrent(ctx, first))
	assert.True(t, first.IsCurrent)

	second := makeRevision("p1", revision.Version{Major: 1, Patch: 1}, "ref-b")
	require.NoError(t, repo.CreateAsCurrent(ctx, second))

	current, err := repo.Current(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	// The previous current revision was demoted, not duplicated.
	revs, err := repo.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.False(t, revs[1].IsCurrent)
}

func TestCreateAsCurrentDuplicateVersion(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	v := revision.Version{Major: 1, Minor: 2, Patch: 3}
	require.NoError(t, repo.CreateAsCurrent(ctx, makeRevision("p1", v, "ref-a")))

	err := repo.CreateAsCurrent(ctx, makeRevision("p1", v, "ref-b"))
	assert.ErrorIs(t, err, revision.ErrConflict)
}

func TestCurrentNoRevisions(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	_, err := repo.Current(ctx, "p1")
	assert.ErrorIs(t, err, revision.ErrNotFound)
}

func TestListOrdersByVersionTuple(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	// Insert out of order, including a version that would sort wrongly as a
	// string ("1.10.0" vs "1.2.0").
	versions := []revision.Version{
		{Major: 1, Minor: 2},
		{Major: 1, Minor: 10},
		{Major: 1, Minor: 1},
	}
	for i, v := range versions {
		require.NoError(t, repo.CreateAsCurrent(ctx, makeRevision("p1", v, types.ContentRef(rune('a'+i)))))
	}

	revs, err := repo.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, "1.10.0", revs[0].Version.String())
	assert.Equal(t, "1.2.0", revs[1].Version.String())
	assert.Equal(t, "1.1.0", revs[2].Version.String())
}

func TestGetByVersion(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	v := revision.Version{Major: 2, Minor: 1}
	want := makeRevision("p1", v, "ref-a")
	want.Comment = "tool change"
	require.NoError(t, repo.CreateAsCurrent(ctx, want))

	got, err := repo.GetByVersion(ctx, "p1", v)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "tool change", got.Comment)
	assert.Equal(t, "tester", got.CreatedBy)

	_, err = repo.GetByVersion(ctx, "p1", revision.Version{Major: 9})
	assert.ErrorIs(t, err, revision.ErrNotFound)
}

func TestSetCurrent(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	first := makeRevision("p1", revision.Version{Major: 1}, "ref-a")
	require.NoError(t, repo.CreateAsCurrent(ctx, first))
	second := makeRevision("p1", revision.Version{Major: 1, Patch: 1}, "ref-b")
	require.NoError(t, repo.CreateAsCurrent(ctx, second))

	require.NoError(t, repo.SetCurrent(ctx, "p1", first.ID))

	current, err := repo.Current(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	// Repointing to the revision that is already current is rejected.
	err = repo.SetCurrent(ctx, "p1", first.ID)
	assert.ErrorIs(t, err, revision.ErrInvalidOperation)

	err = repo.SetCurrent(ctx, "p1", types.NewRevisionID())
	assert.ErrorIs(t, err, revision.ErrNotFound)
}

func TestDeleteGuardsCurrent(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	first := makeRevision("p1", revision.Version{Major: 1}, "ref-a")
	require.NoError(t, repo.CreateAsCurrent(ctx, first))
	second := makeRevision("p1", revision.Version{Major: 1, Patch: 1}, "ref-b")
	require.NoError(t, repo.CreateAsCurrent(ctx, second))

	err := repo.Delete(ctx, "p1", second.ID)
	assert.ErrorIs(t, err, revision.ErrInvalidOperation)

	require.NoError(t, repo.Delete(ctx, "p1", first.ID))
	_, err = repo.GetByID(ctx, "p1", first.ID)
	assert.ErrorIs(t, err, revision.ErrNotFound)
}

func TestContentRefInUse(t *testing.T) {
	repo := newTestRevisionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.RegisterProgram(ctx, "p1", "Part One"))

	rev := makeRevision("p1", revision.Version{Major: 1}, "shared-ref")
	require.NoError(t, repo.CreateAsCurrent(ctx, rev))

	inUse, err := repo.ContentRefInUse(ctx, "shared-ref")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = repo.ContentRefInUse(ctx, "orphan-ref")
	require.NoError(t, err)
	assert.False(t, inUse)
}
