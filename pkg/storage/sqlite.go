package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Open opens (and initializes) the progrev SQLite database at dbPath.
// The parent directory is created if needed.
func Open(dbPath string) (*sql.DB, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection; this also serializes
	// concurrent revision writers at the storage boundary.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// OpenDefault opens the database at its default location, ~/.progrev/progrev.db.
func OpenDefault() (*sql.DB, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return Open(filepath.Join(homeDir, ".progrev", "progrev.db"))
}

// SQLiteRevisionRepository implements revision.Repository using SQLite
// storage. Revision creation and rollback run as single transactions so the
// at-most-one-current invariant cannot be partially applied.
type SQLiteRevisionRepository struct {
	db *sql.DB
}

// NewSQLiteRevisionRepository creates a revision repository over an open
// database handle.
func NewSQLiteRevisionRepository(db *sql.DB) *SQLiteRevisionRepository {
	return &SQLiteRevisionRepository{db: db}
}

// RegisterProgram records a program so revisions can be attached to it.
func (r *SQLiteRevisionRepository) RegisterProgram(ctx context.Context, id types.ProgramID, name string) error {
	if id.IsZero() {
		return fmt.Errorf("program ID cannot be empty")
	}

	query := `
		INSERT INTO programs (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, id.String(), name); err != nil {
		return fmt.Errorf("failed to register program: %w", err)
	}
	return nil
}

// ProgramExists reports whether a program is known.
func (r *SQLiteRevisionRepository) ProgramExists(ctx context.Context, id types.ProgramID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs WHERE id = ?", id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check program: %w", err)
	}
	return count > 0, nil
}

// CreateAsCurrent inserts a new revision and atomically makes it current.
func (r *SQLiteRevisionRepository) CreateAsCurrent(ctx context.Context, rev *revision.Revision) error {
	if rev == nil {
		return fmt.Errorf("cannot save nil revision")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"UPDATE revisions SET is_current = 0 WHERE program_id = ? AND is_current = 1",
		rev.ProgramID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to clear current revision: %w", err)
	}

	query := `
		INSERT INTO revisions (
			id, program_id, version_major, version_minor, version_patch,
			is_current, content_ref, comment, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		rev.ID.String(),
		rev.ProgramID.String(),
		rev.Version.Major,
		rev.Version.Minor,
		rev.Version.Patch,
		rev.ContentRef.String(),
		rev.Comment,
		rev.CreatedBy,
		rev.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return revision.ErrConflict
		}
		return fmt.Errorf("failed to insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rev.IsCurrent = true
	return nil
}

// Current returns the program's current revision.
func (r *SQLiteRevisionRepository) Current(ctx context.Context, programID types.ProgramID) (*revision.Revision, error) {
	query := selectRevision + " WHERE program_id = ? AND is_current = 1"
	return r.scanOne(r.db.QueryRowContext(ctx, query, programID.String()))
}

// List returns all revisions for a program, newest version first.
func (r *SQLiteRevisionRepository) List(ctx context.Context, programID types.ProgramID) ([]*revision.Revision, error) {
	query := selectRevision + `
		WHERE program_id = ?
		ORDER BY version_major DESC, version_minor DESC, version_patch DESC
	`

	rows, err := r.db.QueryContext(ctx, query, programID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	revisions := make([]*revision.Revision, 0)
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// GetByVersion returns the revision with the exact version tuple.
func (r *SQLiteRevisionRepository) GetByVersion(ctx context.Context, programID types.ProgramID, v revision.Version) (*revision.Revision, error) {
	query := selectRevision + `
		WHERE program_id = ? AND version_major = ? AND version_minor = ? AND version_patch = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, programID.String(), v.Major, v.Minor, v.Patch))
}

// GetByID returns the revision with the given ID.
func (r *SQLiteRevisionRepository) GetByID(ctx context.Context, programID types.ProgramID, id types.RevisionID) (*revision.Revision, error) {
	query := selectRevision + " WHERE program_id = ? AND id = ?"
	return r.scanOne(r.db.QueryRowContext(ctx, query, programID.String(), id.String()))
}

// SetCurrent atomically repoints the current flag to the target revision.
func (r *SQLiteRevisionRepository) SetCurrent(ctx context.Context, programID types.ProgramID, id types.RevisionID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var isCurrent bool
	err = tx.QueryRowContext(ctx,
		"SELECT is_current FROM revisions WHERE program_id = ? AND id = ?",
		programID.String(), id.String(),
	).Scan(&isCurrent)
	if err == sql.ErrNoRows {
		return revision.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up revision: %w", err)
	}
	if isCurrent {
		return fmt.Errorf("%w: revision %s is already current", revision.ErrInvalidOperation, id)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE revisions SET is_current = 0 WHERE program_id = ? AND is_current = 1",
		programID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to clear current revision: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE revisions SET is_current = 1 WHERE program_id = ? AND id = ?",
		programID.String(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to set current revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete permanently removes a non-current revision record.
func (r *SQLiteRevisionRepository) Delete(ctx context.Context, programID types.ProgramID, id types.RevisionID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var isCurrent bool
	err = tx.QueryRowContext(ctx,
		"SELECT is_current FROM revisions WHERE program_id = ? AND id = ?",
		programID.String(), id.String(),
	).Scan(&isCurrent)
	if err == sql.ErrNoRows {
		return revision.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up revision: %w", err)
	}
	if isCurrent {
		return fmt.Errorf("%w: cannot delete the current revision", revision.ErrInvalidOperation)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM revisions WHERE program_id = ? AND id = ?",
		programID.String(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ContentRefInUse reports whether any remaining revision references a blob.
func (r *SQLiteRevisionRepository) ContentRefInUse(ctx context.Context, ref types.ContentRef) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM revisions WHERE content_ref = ?", ref.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check content ref: %w", err)
	}
	return count > 0, nil
}

const selectRevision = `
	SELECT id, program_id, version_major, version_minor, version_patch,
	       is_current, content_ref, comment, created_by, created_at
	FROM revisions`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRevisionRepository) scanOne(row *sql.Row) (*revision.Revision, error) {
	rev, err := scanRevision(row)
	if err == sql.ErrNoRows {
		return nil, revision.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rev, nil
}

func scanRevision(row rowScanner) (*revision.Revision, error) {
	var rev revision.Revision
	var id, programID, contentRef string
	var comment sql.NullString
	var isCurrent int
	var createdAt time.Time

	err := row.Scan(
		&id,
		&programID,
		&rev.Version.Major,
		&rev.Version.Minor,
		&rev.Version.Patch,
		&isCurrent,
		&contentRef,
		&comment,
		&rev.CreatedBy,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan revision: %w", err)
	}

	rev.ID = types.RevisionID(id)
	rev.ProgramID = types.ProgramID(programID)
	rev.ContentRef = types.ContentRef(contentRef)
	rev.IsCurrent = isCurrent == 1
	rev.CreatedAt = createdAt
	if comment.Valid {
		rev.Comment = comment.String
	}

	return &rev, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The modernc driver exposes these only through the message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
