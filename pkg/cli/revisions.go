package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	domrev "github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
)

// revisionOutput is the CLI's JSON form of a revision.
type revisionOutput struct {
	ID        string    `json:"id"`
	ProgramID string    `json:"program_id"`
	Version   string    `json:"version"`
	Current   bool      `json:"is_current"`
	Comment   string    `json:"comment,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toRevisionOutput(rev *domrev.Revision) revisionOutput {
	return revisionOutput{
		ID:        rev.ID.String(),
		ProgramID: rev.ProgramID.String(),
		Version:   rev.Version.String(),
		Current:   rev.IsCurrent,
		Comment:   rev.Comment,
		CreatedBy: rev.CreatedBy,
		CreatedAt: rev.CreatedAt,
	}
}

// NewProgramCommand creates the program management command
func NewProgramCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Manage NC programs",
	}

	cmd.AddCommand(newProgramAddCommand())

	return cmd
}

func newProgramAddCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <program-id>",
		Short: "Register a program",
		Long: `Register a program so revisions can be attached to it. The program also
enters the workflow at the definition's initial state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			programID := types.ProgramID(args[0])
			if err := env.repo.RegisterProgram(cmd.Context(), programID, name); err != nil {
				return err
			}

			entity := types.EntityRef{Type: "program", ID: args[0]}
			if err := env.engine.InitializeEntity(cmd.Context(), entity); err != nil {
				return err
			}

			cmd.Printf("Registered program %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable program name")

	return cmd
}

// NewRevisionCommand creates the revision management command
func NewRevisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revision",
		Short: "Manage program revisions",
	}

	cmd.AddCommand(newRevisionCreateCommand())
	cmd.AddCommand(newRevisionListCommand())
	cmd.AddCommand(newRevisionShowCommand())
	cmd.AddCommand(newRevisionContentCommand())
	cmd.AddCommand(newRevisionDeleteCommand())

	return cmd
}

func newRevisionCreateCommand() *cobra.Command {
	var (
		file    string
		bump    string
		comment string
		author  string
		query   string
	)

	cmd := &cobra.Command{
		Use:   "create <program-id>",
		Short: "Create a new revision from a file or stdin",
		Long: `Create a new immutable revision and make it the program's current
revision. Content is read from --file, or from stdin when --file is "-".

The version bump selects which component to increment: patch (default),
minor, or major. The first revision of a program is always 1.0.0.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(file)
			if err != nil {
				return err
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			rev, err := env.revisions.CreateRevision(
				cmd.Context(),
				types.ProgramID(args[0]),
				content,
				domrev.BumpKind(bump),
				comment,
				resolveAuthor(author),
			)
			if err != nil {
				return err
			}

			return printJSON(cmd, toRevisionOutput(rev), query)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Content file (use \"-\" for stdin)")
	cmd.Flags().StringVar(&bump, "bump", "patch", "Version bump: patch, minor, or major")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Revision comment")
	cmd.Flags().StringVar(&author, "author", "", "Author (default: operator identity from the keyring)")
	addQueryFlag(cmd, &query)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newRevisionListCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list <program-id>",
		Short: "List revisions, newest version first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			revs, err := env.revisions.ListRevisions(cmd.Context(), types.ProgramID(args[0]))
			if err != nil {
				return err
			}

			out := make([]revisionOutput, 0, len(revs))
			for _, rev := range revs {
				out = append(out, toRevisionOutput(rev))
			}
			return printJSON(cmd, out, query)
		},
	}

	addQueryFlag(cmd, &query)

	return cmd
}

func newRevisionShowCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "show <program-id> <version>",
		Short: "Show one revision's metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := domrev.ParseVersion(args[1])
			if err != nil {
				return err
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			rev, err := env.revisions.GetRevision(cmd.Context(), types.ProgramID(args[0]), v)
			if err != nil {
				return err
			}
			return printJSON(cmd, toRevisionOutput(rev), query)
		},
	}

	addQueryFlag(cmd, &query)

	return cmd
}

func newRevisionContentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content <program-id> <version>",
		Short: "Print a revision's raw content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := domrev.ParseVersion(args[1])
			if err != nil {
				return err
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			content, err := env.revisions.GetContent(cmd.Context(), types.ProgramID(args[0]), v)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}

	return cmd
}

func newRevisionDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <program-id> <revision-id>",
		Short: "Permanently delete a non-current revision",
		Long: `Permanently delete a revision and, when no other revision shares its
content, the stored content itself. The current revision cannot be deleted.
This is irreversible; without --force a confirmation prompt is shown.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !confirm(cmd, fmt.Sprintf("Permanently delete revision %s of %s?", args[1], args[0])) {
				cmd.Println("Aborted.")
				return nil
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.revisions.DeleteRevision(cmd.Context(), types.ProgramID(args[0]), types.RevisionID(args[1])); err != nil {
				return err
			}

			cmd.Printf("Deleted revision %s\n", args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

// readContent reads revision content from a file, or stdin for "-".
func readContent(file string) ([]byte, error) {
	if file == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return content, nil
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	return content, nil
}

// confirm asks a yes/no question on the command's input stream.
func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Printf("%s [y/N]: ", prompt)

	var answer string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
