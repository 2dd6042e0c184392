package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/progrev/internal/logging"
	"github.com/dshills/progrev/pkg/domain/types"
	"github.com/dshills/progrev/pkg/domain/workflow"
	operrors "github.com/dshills/progrev/pkg/errors"
)

// Engine validates and records workflow transitions for any registered
// entity kind. It never decides when a transition should fire; callers
// request transitions and the engine checks them against the configured
// graph.
type Engine struct {
	def    *Definition
	repo   workflow.Repository
	guards *GuardEvaluator
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a workflow engine over a loaded definition.
func NewEngine(def *Definition, repo workflow.Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		def:    def,
		repo:   repo,
		guards: NewGuardEvaluator(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize persists the state and transition catalogs. Call once at
// startup, after loading the definition.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.repo.SyncDefinition(ctx, e.def.States, e.def.Transitions); err != nil {
		return operrors.NewOperationalError("sync workflow definition", "", "", err)
	}
	return nil
}

// States returns the static state catalog.
func (e *Engine) States() []workflow.State {
	return e.def.States
}

// Definition returns the loaded workflow definition.
func (e *Engine) Definition() *Definition {
	return e.def
}

// TransitionSet is the answer to "where can this entity go from here".
type TransitionSet struct {
	CurrentState workflow.StateCode
	Available    []workflow.Transition
}

// Transitions returns the entity's current state and every outbound edge
// from it.
func (e *Engine) Transitions(ctx context.Context, entity types.EntityRef) (*TransitionSet, error) {
	current, err := e.repo.CurrentState(ctx, entity)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: entity %s", workflow.ErrNotFound, entity)
		}
		return nil, operrors.NewOperationalError("fetch transitions", "", entity.String(), err)
	}

	return &TransitionSet{
		CurrentState: current,
		Available:    e.def.Outbound(current),
	}, nil
}

// ChangeRequest carries one requested state change.
type ChangeRequest struct {
	Entity    types.EntityRef
	ToState   workflow.StateCode
	Reason    string
	ChangedBy string
	// GuardContext supplies values for the transition's guard expression,
	// e.g. the caller's role. Ignored when the edge has no guard.
	GuardContext map[string]interface{}
}

// ChangeState validates and applies one state change:
// read the current state, verify the edge exists, check the reason
// requirement and guard, compare-and-set the state pointer, and append an
// audit record. On a concurrent write the caller gets ErrStaleState and is
// expected to re-fetch transitions and retry.
func (e *Engine) ChangeState(ctx context.Context, req ChangeRequest) (workflow.StateCode, error) {
	if req.Entity.IsZero() {
		return "", fmt.Errorf("%w: entity reference cannot be empty", workflow.ErrNotFound)
	}

	current, err := e.repo.CurrentState(ctx, req.Entity)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return "", fmt.Errorf("%w: entity %s", workflow.ErrNotFound, req.Entity)
		}
		return "", operrors.NewOperationalError("change state", "", req.Entity.String(), err)
	}

	edge, ok := e.def.Find(current, req.ToState)
	if !ok {
		return "", fmt.Errorf("%w: %s -> %s", workflow.ErrInvalidTransition, current, req.ToState)
	}

	if edge.RequiresReason && strings.TrimSpace(req.Reason) == "" {
		return "", fmt.Errorf("%w: transition %s -> %s", workflow.ErrReasonRequired, current, req.ToState)
	}

	if edge.Guard != "" {
		allowed, err := e.guards.Evaluate(edge.Guard, req.GuardContext)
		if err != nil {
			return "", operrors.NewOperationalError("evaluate guard", "", req.Entity.String(), err)
		}
		if !allowed {
			return "", fmt.Errorf("%w: %s -> %s", workflow.ErrGuardRejected, current, req.ToState)
		}
	}

	if err := e.repo.CompareAndSetState(ctx, req.Entity, current, req.ToState); err != nil {
		if errors.Is(err, workflow.ErrStaleState) {
			return "", err
		}
		return "", operrors.NewOperationalError("change state", "", req.Entity.String(), err)
	}

	entry := &workflow.HistoryEntry{
		ID:        uuid.NewString(),
		Entity:    req.Entity,
		FromState: current,
		ToState:   req.ToState,
		Reason:    strings.TrimSpace(req.Reason),
		ChangedBy: req.ChangedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.repo.AppendHistory(ctx, entry); err != nil {
		// The state change itself succeeded; surface the audit failure
		// rather than hiding it.
		e.logger.Error("state changed but history append failed",
			"entity", req.Entity.String(),
			"from", current.String(),
			"to", req.ToState.String(),
			"error", err,
		)
		return "", operrors.NewOperationalError("append history", "", req.Entity.String(), err)
	}

	e.logger.Info("state changed",
		"entity", req.Entity.String(),
		"from", current.String(),
		"to", req.ToState.String(),
		"by", req.ChangedBy,
	)

	return req.ToState, nil
}

// History returns audit records for an entity, newest first. A limit of 0
// means no limit.
func (e *Engine) History(ctx context.Context, entity types.EntityRef, limit, offset int) ([]*workflow.HistoryEntry, error) {
	entries, err := e.repo.History(ctx, entity, limit, offset)
	if err != nil {
		return nil, operrors.NewOperationalError("fetch history", "", entity.String(), err)
	}
	return entries, nil
}

// InitializeEntity records the definition's initial state for a newly
// created entity. Collaborators that own the entity record call this once
// at creation time.
func (e *Engine) InitializeEntity(ctx context.Context, entity types.EntityRef) error {
	if entity.IsZero() {
		return fmt.Errorf("entity reference cannot be empty")
	}
	if err := e.repo.InitializeState(ctx, entity, e.def.Initial); err != nil {
		if errors.Is(err, workflow.ErrStaleState) {
			return err
		}
		return operrors.NewOperationalError("initialize entity", "", entity.String(), err)
	}
	return nil
}
