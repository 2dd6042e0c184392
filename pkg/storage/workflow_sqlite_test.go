package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/progrev/pkg/domain/types"
	"github.com/dshills/progrev/pkg/domain/workflow"
)

var testEntity = types.EntityRef{Type: "program", ID: "part-1"}

func newTestWorkflowRepo(t *testing.T) *SQLiteWorkflowRepository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "progrev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLiteWorkflowRepository(db)
}

func TestSyncDefinitionReplacesCatalog(t *testing.T) {
	repo := newTestWorkflowRepo(t)
	ctx := context.Background()

	states := []workflow.State{
		{Code: "a", DisplayName: "A"},
		{Code: "b", DisplayName: "B", Terminal: true},
	}
	transitions := []workflow.Transition{{From: "a", To: "b", RequiresReason: true}}
	require.NoError(t, repo.SyncDefinition(ctx, states, transitions))

	// A second sync with a different catalog replaces, not accumulates.
	require.NoError(t, repo.SyncDefinition(ctx, states[:1], nil))
	require.NoError(t, repo.SyncDefinition(ctx, states, transitions))
}

func TestInitializeStateOnce(t *testing.T) {
	repo := newTestWorkflowRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InitializeState(ctx, testEntity, "draft"))

	err := repo.InitializeState(ctx, testEntity, "draft")
	assert.ErrorIs(t, err, workflow.ErrStaleState)

	state, err := repo.CurrentState(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCode("draft"), state)
}

func TestCurrentStateUnknownEntity(t *testing.T) {
	repo := newTestWorkflowRepo(t)

	_, err := repo.CurrentState(context.Background(), testEntity)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestCompareAndSetState(t *testing.T) {
	repo := newTestWorkflowRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.InitializeState(ctx, testEntity, "draft"))

	require.NoError(t, repo.CompareAndSetState(ctx, testEntity, "draft", "review"))

	state, err := repo.CurrentState(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCode("review"), state)

	// The observed state is no longer "draft", so a writer that read the
	// old pointer fails fast.
	err = repo.CompareAndSetState(ctx, testEntity, "draft", "approved")
	assert.ErrorIs(t, err, workflow.ErrStaleState)

	state, err = repo.CurrentState(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCode("review"), state)
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newTestWorkflowRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	steps := []struct {
		from, to workflow.StateCode
	}{
		{"draft", "review"},
		{"review", "approved"},
		{"approved", "released"},
	}
	for i, s := range steps {
		entry := &workflow.HistoryEntry{
			ID:        uuid.NewString(),
			Entity:    testEntity,
			FromState: s.from,
			ToState:   s.to,
			ChangedBy: "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.AppendHistory(ctx, entry))
	}

	entries, err := repo.History(ctx, testEntity, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, workflow.StateCode("released"), entries[0].ToState)
	assert.Equal(t, workflow.StateCode("review"), entries[2].ToState)

	page, err := repo.History(ctx, testEntity, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, workflow.StateCode("approved"), page[0].ToState)

	// History for another entity is empty, not an error.
	other, err := repo.History(ctx, types.EntityRef{Type: "inspection_plan", ID: "ip-1"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}
