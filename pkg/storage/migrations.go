package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 1

// InitializeDatabase creates the SQLite schema for revisions and workflow
// state. Includes migration version tracking to support future schema
// updates.
func InitializeDatabase(db *sql.DB) error {
	// Create migrations table to track schema version
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check current version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	// Apply migrations
	if currentVersion < 1 {
		if err := applyMigration1(db); err != nil {
			return fmt.Errorf("failed to apply migration 1: %w", err)
		}
	}

	return nil
}

// applyMigration1 creates the initial database schema.
func applyMigration1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Programs table - minimal registry so revisions have an owner.
	// Program CRUD itself lives outside this engine.
	programsTable := `
	CREATE TABLE programs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := tx.Exec(programsTable); err != nil {
		return fmt.Errorf("failed to create programs table: %w", err)
	}

	// Revisions table - immutable content snapshots, one current per program
	revisionsTable := `
	CREATE TABLE revisions (
		id TEXT PRIMARY KEY,
		program_id TEXT NOT NULL,
		version_major INTEGER NOT NULL,
		version_minor INTEGER NOT NULL,
		version_patch INTEGER NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 0,
		content_ref TEXT NOT NULL,
		comment TEXT,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (program_id) REFERENCES programs(id) ON DELETE CASCADE,
		UNIQUE (program_id, version_major, version_minor, version_patch)
	);`

	if _, err := tx.Exec(revisionsTable); err != nil {
		return fmt.Errorf("failed to create revisions table: %w", err)
	}

	revisionsIndexes := []string{
		// At most one current revision per program
		"CREATE UNIQUE INDEX idx_revisions_current ON revisions(program_id) WHERE is_current = 1;",
		// Listing is always newest version first
		"CREATE INDEX idx_revisions_version ON revisions(program_id, version_major DESC, version_minor DESC, version_patch DESC);",
	}

	for _, idx := range revisionsIndexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create revision index: %w", err)
		}
	}

	// Workflow catalog tables - synced from the loaded definition
	workflowStatesTable := `
	CREATE TABLE workflow_states (
		code TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		description TEXT,
		is_terminal INTEGER NOT NULL DEFAULT 0
	);`

	if _, err := tx.Exec(workflowStatesTable); err != nil {
		return fmt.Errorf("failed to create workflow_states table: %w", err)
	}

	workflowTransitionsTable := `
	CREATE TABLE workflow_transitions (
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		requires_reason INTEGER NOT NULL DEFAULT 0,
		guard TEXT,
		PRIMARY KEY (from_state, to_state)
	);`

	if _, err := tx.Exec(workflowTransitionsTable); err != nil {
		return fmt.Errorf("failed to create workflow_transitions table: %w", err)
	}

	// Entity state pointers - exactly one current state per (type, id)
	entityStatesTable := `
	CREATE TABLE entity_states (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	);`

	if _, err := tx.Exec(entityStatesTable); err != nil {
		return fmt.Errorf("failed to create entity_states table: %w", err)
	}

	// Workflow history table - append-only audit trail of state changes
	workflowHistoryTable := `
	CREATE TABLE workflow_history (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		reason TEXT,
		changed_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := tx.Exec(workflowHistoryTable); err != nil {
		return fmt.Errorf("failed to create workflow_history table: %w", err)
	}

	historyIndex := "CREATE INDEX idx_workflow_history_entity ON workflow_history(entity_type, entity_id, created_at DESC);"
	if _, err := tx.Exec(historyIndex); err != nil {
		return fmt.Errorf("failed to create workflow history index: %w", err)
	}

	// Record migration
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
