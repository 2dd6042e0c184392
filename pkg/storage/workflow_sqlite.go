package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/progrev/pkg/domain/types"
	"github.com/dshills/progrev/pkg/domain/workflow"
)

// SQLiteWorkflowRepository implements workflow.Repository using SQLite
// storage. State pointer writes go through a compare-and-set UPDATE so
// concurrent writers fail fast instead of silently overwriting.
type SQLiteWorkflowRepository struct {
	db *sql.DB
}

// NewSQLiteWorkflowRepository creates a workflow repository over an open
// database handle.
func NewSQLiteWorkflowRepository(db *sql.DB) *SQLiteWorkflowRepository {
	return &SQLiteWorkflowRepository{db: db}
}

// SyncDefinition replaces the stored state and transition catalogs with the
// loaded definition.
func (r *SQLiteWorkflowRepository) SyncDefinition(ctx context.Context, states []workflow.State, transitions []workflow.Transition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_transitions"); err != nil {
		return fmt.Errorf("failed to clear transitions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_states"); err != nil {
		return fmt.Errorf("failed to clear states: %w", err)
	}

	for _, s := range states {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO workflow_states (code, display_name, description, is_terminal) VALUES (?, ?, ?, ?)",
			s.Code.String(), s.DisplayName, s.Description, boolToInt(s.Terminal),
		)
		if err != nil {
			return fmt.Errorf("failed to insert state %s: %w", s.Code, err)
		}
	}

	for _, t := range transitions {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO workflow_transitions (from_state, to_state, requires_reason, guard) VALUES (?, ?, ?, ?)",
			t.From.String(), t.To.String(), boolToInt(t.RequiresReason), t.Guard,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transition %s->%s: %w", t.From, t.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CurrentState returns the entity's current state pointer.
func (r *SQLiteWorkflowRepository) CurrentState(ctx context.Context, entity types.EntityRef) (workflow.StateCode, error) {
	var state string
	err := r.db.QueryRowContext(ctx,
		"SELECT state FROM entity_states WHERE entity_type = ? AND entity_id = ?",
		string(entity.Type), entity.ID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", workflow.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read entity state: %w", err)
	}
	return workflow.StateCode(state), nil
}

// InitializeState records the initial state for a newly created entity.
func (r *SQLiteWorkflowRepository) InitializeState(ctx context.Context, entity types.EntityRef, state workflow.StateCode) error {
	if entity.IsZero() {
		return fmt.Errorf("entity reference cannot be empty")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO entity_states (entity_type, entity_id, state, updated_at) VALUES (?, ?, ?, ?)",
		string(entity.Type), entity.ID, state.String(), time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: entity %s already has a state", workflow.ErrStaleState, entity)
		}
		return fmt.Errorf("failed to initialize entity state: %w", err)
	}
	return nil
}

// CompareAndSetState atomically moves the state pointer from the observed
// state to the new one.
func (r *SQLiteWorkflowRepository) CompareAndSetState(ctx context.Context, entity types.EntityRef, from, to workflow.StateCode) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE entity_states SET state = ?, updated_at = ? WHERE entity_type = ? AND entity_id = ? AND state = ?",
		to.String(), time.Now().UTC(), string(entity.Type), entity.ID, from.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update entity state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		// Either the entity vanished or another writer moved it first.
		return workflow.ErrStaleState
	}

	return nil
}

// AppendHistory appends an immutable audit record.
func (r *SQLiteWorkflowRepository) AppendHistory(ctx context.Context, entry *workflow.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot append nil history entry")
	}

	var reason sql.NullString
	if entry.Reason != "" {
		reason.Valid = true
		reason.String = entry.Reason
	}

	query := `
		INSERT INTO workflow_history (
			id, entity_type, entity_id, from_state, to_state, reason, changed_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Entity.Type),
		entry.Entity.ID,
		entry.FromState.String(),
		entry.ToState.String(),
		reason,
		entry.ChangedBy,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	return nil
}

// History returns audit records for an entity, newest first.
func (r *SQLiteWorkflowRepository) History(ctx context.Context, entity types.EntityRef, limit, offset int) ([]*workflow.HistoryEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, from_state, to_state, reason, changed_by, created_at
		FROM workflow_history
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{string(entity.Type), entity.ID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*workflow.HistoryEntry, 0)
	for rows.Next() {
		var entry workflow.HistoryEntry
		var entityType, entityID, fromState, toState string
		var reason sql.NullString
		var createdAt time.Time

		err := rows.Scan(
			&entry.ID,
			&entityType,
			&entityID,
			&fromState,
			&toState,
			&reason,
			&entry.ChangedBy,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		entry.Entity = types.EntityRef{Type: types.EntityType(entityType), ID: entityID}
		entry.FromState = workflow.StateCode(fromState)
		entry.ToState = workflow.StateCode(toState)
		entry.CreatedAt = createdAt
		if reason.Valid {
			entry.Reason = reason.String
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
