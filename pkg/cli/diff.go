package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/progrev/pkg/diff"
	domrev "github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
)

// NewDiffCommand creates the diff command
func NewDiffCommand() *cobra.Command {
	var (
		asJSON bool
		query  string
	)

	cmd := &cobra.Command{
		Use:   "diff <program-id> <from-version> <to-version>",
		Short: "Show the line diff between two revisions",
		Long: `Compute the line-level difference between two revisions of a program.
The default output is a unified-style listing; --json emits the full
structured result with the per-kind summary.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domrev.ParseVersion(args[1])
			if err != nil {
				return fmt.Errorf("invalid from version: %w", err)
			}
			to, err := domrev.ParseVersion(args[2])
			if err != nil {
				return fmt.Errorf("invalid to version: %w", err)
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.revisions.Diff(cmd.Context(), types.ProgramID(args[0]), from, to)
			if err != nil {
				return err
			}

			if asJSON || query != "" {
				return printJSON(cmd, result, query)
			}

			printDiff(cmd, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the structured diff result")
	addQueryFlag(cmd, &query)

	return cmd
}

func printDiff(cmd *cobra.Command, result *diff.Result) {
	for _, line := range result.Lines {
		switch line.Kind {
		case diff.KindAdded:
			cmd.Printf("+ %4d %s\n", line.Number, line.Content)
		case diff.KindRemoved:
			cmd.Printf("- %4d %s\n", line.Number, line.Content)
		case diff.KindChanged:
			cmd.Printf("~ %4d %s -> %s\n", line.Number, line.OldContent, line.NewContent)
		default:
			cmd.Printf("  %4d %s\n", line.Number, line.Content)
		}
	}

	s := result.Summary
	cmd.Printf("\n%d added, %d removed, %d changed, %d unchanged\n",
		s.Added, s.Removed, s.Changed, s.Unchanged)
}
