// Package rollback orchestrates revision rollback with an optional,
// explicitly requested workflow reset. It is the only component aware of
// both the revision store and the workflow engine.
package rollback

import (
	"context"
	"log/slog"

	"github.com/dshills/progrev/internal/logging"
	domrev "github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
	domwf "github.com/dshills/progrev/pkg/domain/workflow"
	"github.com/dshills/progrev/pkg/revision"
	"github.com/dshills/progrev/pkg/workflow"
)

// EntityTypeProgram is the workflow entity type tag for NC programs.
const EntityTypeProgram types.EntityType = "program"

// Request describes one rollback operation.
type Request struct {
	ProgramID types.ProgramID
	Target    domrev.Version
	Author    string

	// ResetWorkflow moves the program's workflow state after the rollback.
	// This is never automatic: silently altering approval state as a side
	// effect of a version operation is the wrong default in a regulated
	// shop, so callers must ask for it.
	ResetWorkflow bool
	// ResetTo is the state to move to when ResetWorkflow is set. Empty
	// means the definition's initial state.
	ResetTo domwf.StateCode
	// ResetReason is recorded on the workflow transition when one happens.
	ResetReason string
	// GuardContext is passed through to the workflow transition's guard.
	GuardContext map[string]interface{}
}

// Result reports what a rollback did.
type Result struct {
	Revision      *domrev.Revision
	WorkflowState domwf.StateCode
	WorkflowReset bool
}

// Coordinator combines the revision service and the workflow engine.
type Coordinator struct {
	revisions *revision.Service
	engine    *workflow.Engine
	logger    *slog.Logger
}

// NewCoordinator creates a rollback coordinator.
func NewCoordinator(revisions *revision.Service, engine *workflow.Engine, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		revisions: revisions,
		engine:    engine,
		logger:    logger,
	}
}

// Rollback repoints the program's current revision to the target version
// and, only when requested, moves its workflow state. The revision rollback
// and the workflow transition are separate operations: if the transition
// fails the rollback stands, and the error tells the caller which half to
// retry.
func (c *Coordinator) Rollback(ctx context.Context, req Request) (*Result, error) {
	rev, err := c.revisions.Rollback(ctx, req.ProgramID, req.Target, req.Author)
	if err != nil {
		return nil, err
	}

	result := &Result{Revision: rev}

	if !req.ResetWorkflow {
		return result, nil
	}

	entity := types.EntityRef{Type: EntityTypeProgram, ID: req.ProgramID.String()}

	resetTo := req.ResetTo
	if resetTo == "" {
		resetTo = c.engine.Definition().Initial
	}

	newState, err := c.engine.ChangeState(ctx, workflow.ChangeRequest{
		Entity:       entity,
		ToState:      resetTo,
		Reason:       req.ResetReason,
		ChangedBy:    req.Author,
		GuardContext: req.GuardContext,
	})
	if err != nil {
		c.logger.Warn("rollback succeeded but workflow reset failed",
			"program", req.ProgramID.String(),
			"target", req.Target.String(),
			"error", err,
		)
		return result, err
	}

	result.WorkflowState = newState
	result.WorkflowReset = true
	return result, nil
}
