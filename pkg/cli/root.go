// Package cli implements the progrev command line interface.
package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/progrev/internal/logging"
	"github.com/dshills/progrev/pkg/revision"
	"github.com/dshills/progrev/pkg/rollback"
	"github.com/dshills/progrev/pkg/storage"
	"github.com/dshills/progrev/pkg/workflow"
)

const (
	// Version is the current version of progrev
	Version = "1.0.0"

	// definitionFile is the workflow definition looked up in the config
	// directory. When absent, the built-in approval lifecycle is used.
	definitionFile = "workflow.yaml"
)

// Config holds the global configuration for the progrev CLI
type Config struct {
	ConfigDir string
	Debug     bool
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

// NewRootCommand creates the root cobra command for progrev
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progrev",
		Short: "progrev - NC program revision and workflow engine",
		Long: `progrev manages versioned revisions of NC programs and drives their
approval workflow. Every revision is an immutable snapshot with a three-part
version number; exactly one revision per program is current at a time, and
every workflow state change is recorded in an append-only audit history.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&GlobalConfig.ConfigDir, "config-dir", "", "Configuration directory (default: ~/.progrev)")

	// Add subcommands
	cmd.AddCommand(NewProgramCommand())
	cmd.AddCommand(NewRevisionCommand())
	cmd.AddCommand(NewDiffCommand())
	cmd.AddCommand(NewRollbackCommand())
	cmd.AddCommand(NewWorkflowCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewCredentialCommand())
	cmd.AddCommand(NewServeCommand())

	return cmd
}

// initConfig initializes the progrev configuration directory
func initConfig() error {
	// Environment variable always takes priority (for testing)
	if envDir := os.Getenv("PROGREV_CONFIG_DIR"); envDir != "" {
		GlobalConfig.ConfigDir = envDir
	} else if GlobalConfig.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		GlobalConfig.ConfigDir = filepath.Join(homeDir, ".progrev")
	}

	if err := os.MkdirAll(GlobalConfig.ConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// newLogger creates the CLI logger at a level derived from --debug.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if GlobalConfig.Debug {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

// environment bundles the opened stores and services behind one Close.
type environment struct {
	db          *sql.DB
	revisions   *revision.Service
	repo        *storage.SQLiteRevisionRepository
	engine      *workflow.Engine
	coordinator *rollback.Coordinator
}

// openEnvironment opens the database and blob store under the config
// directory and wires the engine services. The workflow definition is
// loaded from <config-dir>/workflow.yaml when present.
func openEnvironment(cmd *cobra.Command) (*environment, error) {
	logger := newLogger()

	db, err := storage.Open(filepath.Join(GlobalConfig.ConfigDir, "progrev.db"))
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewFilesystemBlobStoreWithPath(filepath.Join(GlobalConfig.ConfigDir, "blobs"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	def, err := loadDefinition()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := storage.NewSQLiteRevisionRepository(db)
	revisions := revision.NewService(repo, blobs, revision.WithLogger(logger))
	engine := workflow.NewEngine(def, storage.NewSQLiteWorkflowRepository(db), workflow.WithEngineLogger(logger))
	if err := engine.Initialize(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &environment{
		db:          db,
		revisions:   revisions,
		repo:        repo,
		engine:      engine,
		coordinator: rollback.NewCoordinator(revisions, engine, logger),
	}, nil
}

func (e *environment) Close() {
	_ = e.db.Close()
}

// loadDefinition loads the configured workflow definition, falling back to
// the built-in approval lifecycle.
func loadDefinition() (*workflow.Definition, error) {
	path := filepath.Join(GlobalConfig.ConfigDir, definitionFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return workflow.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}

	if err := workflow.ValidateAgainstSchema(data); err != nil {
		return nil, fmt.Errorf("workflow definition %s: %w", path, err)
	}
	return workflow.Parse(data)
}

// resolveAuthor returns the explicit author when given, otherwise the
// operator identity from the system keyring.
func resolveAuthor(author string) string {
	if author != "" {
		return author
	}
	stored, err := storage.NewKeyringCredentialStore().Get(storage.OperatorKey)
	if err != nil {
		return ""
	}
	return stored
}
