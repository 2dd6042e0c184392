package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	domrev "github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
	domwf "github.com/dshills/progrev/pkg/domain/workflow"
	"github.com/dshills/progrev/pkg/rollback"
)

// NewRollbackCommand creates the rollback command
func NewRollbackCommand() *cobra.Command {
	var (
		author      string
		resetTo     string
		resetReason string
		reset       bool
	)

	cmd := &cobra.Command{
		Use:   "rollback <program-id> <target-version>",
		Short: "Make an older revision current again",
		Long: `Repoint the program's current revision to the target version. No new
revision is created and the version counter is not bumped.

The workflow state is never touched unless --reset-workflow is given, in
which case the program is moved to --reset-to (default: the workflow's
initial state) with --reset-reason recorded in the audit history.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domrev.ParseVersion(args[1])
			if err != nil {
				return fmt.Errorf("invalid target version: %w", err)
			}

			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.coordinator.Rollback(cmd.Context(), rollback.Request{
				ProgramID:     types.ProgramID(args[0]),
				Target:        target,
				Author:        resolveAuthor(author),
				ResetWorkflow: reset,
				ResetTo:       domwf.StateCode(resetTo),
				ResetReason:   resetReason,
			})
			if err != nil {
				// A partial result means the revision rollback stood while
				// the workflow reset failed; report both halves.
				if result != nil {
					cmd.Printf("Rolled back %s to %s, but the workflow reset failed: %v\n",
						args[0], args[1], err)
					if errors.Is(err, domwf.ErrInvalidTransition) {
						cmd.Println("Retry the state change separately with: progrev workflow change")
					}
				}
				return err
			}

			cmd.Printf("Rolled back %s to %s\n", args[0], args[1])
			if result.WorkflowReset {
				cmd.Printf("Workflow state reset to %s\n", result.WorkflowState)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author (default: operator identity from the keyring)")
	cmd.Flags().BoolVar(&reset, "reset-workflow", false, "Also move the program's workflow state")
	cmd.Flags().StringVar(&resetTo, "reset-to", "", "Target workflow state for the reset (default: initial state)")
	cmd.Flags().StringVar(&resetReason, "reset-reason", "", "Reason recorded on the workflow reset")

	return cmd
}
