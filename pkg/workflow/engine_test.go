package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/progrev/pkg/domain/types"
	domwf "github.com/dshills/progrev/pkg/domain/workflow"
	"github.com/dshills/progrev/pkg/storage"
)

var testEntity = types.EntityRef{Type: "program", ID: "part-4711"}

func newTestEngine(t *testing.T, def *Definition) *Engine {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "progrev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	engine := NewEngine(def, storage.NewSQLiteWorkflowRepository(db))
	require.NoError(t, engine.Initialize(context.Background()))
	return engine
}

func TestInitializeEntityStartsAtInitial(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()

	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	set, err := engine.Transitions(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("draft"), set.CurrentState)
}

func TestInitializeEntityTwice(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()

	require.NoError(t, engine.InitializeEntity(ctx, testEntity))
	err := engine.InitializeEntity(ctx, testEntity)
	assert.ErrorIs(t, err, domwf.ErrStaleState)
}

func TestChangeStateHappyPath(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	state, err := engine.ChangeState(ctx, ChangeRequest{
		Entity:    testEntity,
		ToState:   "review",
		ChangedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("review"), state)

	set, err := engine.Transitions(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("review"), set.CurrentState)
}

func TestChangeStateInvalidTransition(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	// draft -> released is not an edge in the default graph.
	_, err := engine.ChangeState(ctx, ChangeRequest{
		Entity:    testEntity,
		ToState:   "released",
		ChangedBy: "alice",
	})
	assert.ErrorIs(t, err, domwf.ErrInvalidTransition)

	// State must be unchanged after the rejected request.
	set, err := engine.Transitions(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("draft"), set.CurrentState)
}

func TestChangeStateReasonRequired(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	_, err := engine.ChangeState(ctx, ChangeRequest{Entity: testEntity, ToState: "review", ChangedBy: "alice"})
	require.NoError(t, err)

	// review -> rejected requires a non-blank reason.
	_, err = engine.ChangeState(ctx, ChangeRequest{
		Entity:    testEntity,
		ToState:   "rejected",
		Reason:    "   ",
		ChangedBy: "bob",
	})
	assert.ErrorIs(t, err, domwf.ErrReasonRequired)

	state, err := engine.ChangeState(ctx, ChangeRequest{
		Entity:    testEntity,
		ToState:   "rejected",
		Reason:    "tolerances out of range",
		ChangedBy: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("rejected"), state)
}

func TestChangeStateUnknownEntity(t *testing.T) {
	engine := newTestEngine(t, Default())

	_, err := engine.ChangeState(context.Background(), ChangeRequest{
		Entity:    types.EntityRef{Type: "program", ID: "ghost"},
		ToState:   "review",
		ChangedBy: "alice",
	})
	assert.ErrorIs(t, err, domwf.ErrNotFound)
}

func TestChangeStateAppendsOneHistoryEntry(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	_, err := engine.ChangeState(ctx, ChangeRequest{Entity: testEntity, ToState: "review", ChangedBy: "alice"})
	require.NoError(t, err)
	_, err = engine.ChangeState(ctx, ChangeRequest{Entity: testEntity, ToState: "approved", ChangedBy: "bob"})
	require.NoError(t, err)

	entries, err := engine.History(ctx, testEntity, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, domwf.StateCode("review"), entries[0].FromState)
	assert.Equal(t, domwf.StateCode("approved"), entries[0].ToState)
	assert.Equal(t, "bob", entries[0].ChangedBy)
	assert.Equal(t, domwf.StateCode("draft"), entries[1].FromState)
	assert.Equal(t, domwf.StateCode("review"), entries[1].ToState)
}

func TestHistoryPagination(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	path := []domwf.StateCode{"review", "rejected", "draft", "review"}
	for _, to := range path {
		_, err := engine.ChangeState(ctx, ChangeRequest{
			Entity:    testEntity,
			ToState:   to,
			Reason:    "cycle",
			ChangedBy: "alice",
		})
		require.NoError(t, err)
	}

	page, err := engine.History(ctx, testEntity, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domwf.StateCode("review"), page[0].ToState)

	rest, err := engine.History(ctx, testEntity, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, domwf.StateCode("rejected"), rest[0].ToState)
}

func TestChangeStateGuard(t *testing.T) {
	states := []domwf.State{
		{Code: "draft", DisplayName: "Draft"},
		{Code: "approved", DisplayName: "Approved"},
	}
	transitions := []domwf.Transition{
		{From: "draft", To: "approved", Guard: `role == "supervisor"`},
	}
	def, err := NewDefinition("draft", states, transitions)
	require.NoError(t, err)

	engine := newTestEngine(t, def)
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	_, err = engine.ChangeState(ctx, ChangeRequest{
		Entity:       testEntity,
		ToState:      "approved",
		ChangedBy:    "mallory",
		GuardContext: map[string]interface{}{"role": "operator"},
	})
	assert.ErrorIs(t, err, domwf.ErrGuardRejected)

	// A missing context key also fails closed.
	_, err = engine.ChangeState(ctx, ChangeRequest{Entity: testEntity, ToState: "approved", ChangedBy: "mallory"})
	assert.ErrorIs(t, err, domwf.ErrGuardRejected)

	state, err := engine.ChangeState(ctx, ChangeRequest{
		Entity:       testEntity,
		ToState:      "approved",
		ChangedBy:    "alice",
		GuardContext: map[string]interface{}{"role": "supervisor"},
	})
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("approved"), state)

	// Guard rejections never reach the audit trail.
	entries, err := engine.History(ctx, testEntity, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTransitionsFromTerminalState(t *testing.T) {
	engine := newTestEngine(t, Default())
	ctx := context.Background()
	require.NoError(t, engine.InitializeEntity(ctx, testEntity))

	_, err := engine.ChangeState(ctx, ChangeRequest{
		Entity:    testEntity,
		ToState:   "archived",
		Reason:    "superseded by part-4712",
		ChangedBy: "alice",
	})
	require.NoError(t, err)

	set, err := engine.Transitions(ctx, testEntity)
	require.NoError(t, err)
	assert.Equal(t, domwf.StateCode("archived"), set.CurrentState)
	assert.Empty(t, set.Available)
}

func TestStatesCatalog(t *testing.T) {
	engine := newTestEngine(t, Default())

	states := engine.States()
	require.Len(t, states, 6)

	codes := make(map[domwf.StateCode]bool, len(states))
	for _, s := range states {
		codes[s.Code] = true
	}
	for _, want := range []domwf.StateCode{"draft", "review", "approved", "released", "rejected", "archived"} {
		assert.True(t, codes[want], "missing state %s", want)
	}
}
