package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/progrev/pkg/workflow"
)

// NewValidateCommand creates the definition validation command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition-file>",
		Short: "Validate a workflow definition file",
		Long: `Validate a workflow definition YAML file without loading it into the
engine. Validation runs in two passes: structural checks against the
definition schema, then graph integrity checks (unknown states, edges
leaving terminal states, duplicate edges).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}

			if err := workflow.ValidateAgainstSchema(data); err != nil {
				return err
			}

			def, err := workflow.Parse(data)
			if err != nil {
				return err
			}

			cmd.Printf("%s is valid: %d states, %d transitions, initial state %q\n",
				args[0], len(def.States), len(def.Transitions), def.Initial)
			return nil
		},
	}

	return cmd
}
