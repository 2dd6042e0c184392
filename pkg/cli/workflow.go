package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/progrev/pkg/domain/types"
	domwf "github.com/dshills/progrev/pkg/domain/workflow"
	"github.com/dshills/progrev/pkg/workflow"
)

// NewWorkflowCommand creates the workflow command
func NewWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and drive entity workflow state",
	}

	cmd.AddCommand(newWorkflowStatesCommand())
	cmd.AddCommand(newWorkflowTransitionsCommand())
	cmd.AddCommand(newWorkflowChangeCommand())
	cmd.AddCommand(newWorkflowHistoryCommand())

	return cmd
}

func newWorkflowStatesCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "states",
		Short: "List the workflow state catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			type stateOutput struct {
				Code        string `json:"code"`
				DisplayName string `json:"display_name"`
				Description string `json:"description,omitempty"`
				Terminal    bool   `json:"is_terminal"`
			}

			states := env.engine.States()
			out := make([]stateOutput, 0, len(states))
			for _, s := range states {
				out = append(out, stateOutput{
					Code:        s.Code.String(),
					DisplayName: s.DisplayName,
					Description: s.Description,
					Terminal:    s.Terminal,
				})
			}
			return printJSON(cmd, out, query)
		},
	}

	addQueryFlag(cmd, &query)

	return cmd
}

func newWorkflowTransitionsCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "transitions <entity-type> <entity-id>",
		Short: "Show an entity's current state and available transitions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			entity := types.EntityRef{Type: types.EntityType(args[0]), ID: args[1]}
			set, err := env.engine.Transitions(cmd.Context(), entity)
			if err != nil {
				return err
			}

			type edgeOutput struct {
				To             string `json:"to"`
				RequiresReason bool   `json:"requires_reason"`
			}
			edges := make([]edgeOutput, 0, len(set.Available))
			for _, t := range set.Available {
				edges = append(edges, edgeOutput{To: t.To.String(), RequiresReason: t.RequiresReason})
			}

			return printJSON(cmd, map[string]interface{}{
				"current_state":         set.CurrentState.String(),
				"available_transitions": edges,
			}, query)
		},
	}

	addQueryFlag(cmd, &query)

	return cmd
}

func newWorkflowChangeCommand() *cobra.Command {
	var (
		reason    string
		changedBy string
		role      string
	)

	cmd := &cobra.Command{
		Use:   "change <entity-type> <entity-id> <to-state>",
		Short: "Move an entity to a new workflow state",
		Long: `Request a workflow transition. The transition must be an edge in the
configured graph; edges into rejected or archived states typically require
--reason, and guarded edges check --role against the guard expression.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			var guardCtx map[string]interface{}
			if role != "" {
				guardCtx = map[string]interface{}{"role": role}
			}

			newState, err := env.engine.ChangeState(cmd.Context(), workflow.ChangeRequest{
				Entity:       types.EntityRef{Type: types.EntityType(args[0]), ID: args[1]},
				ToState:      domwf.StateCode(args[2]),
				Reason:       reason,
				ChangedBy:    resolveAuthor(changedBy),
				GuardContext: guardCtx,
			})
			if err != nil {
				return err
			}

			cmd.Printf("%s/%s is now %s\n", args[0], args[1], newState)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason for the state change")
	cmd.Flags().StringVar(&changedBy, "by", "", "Who requested the change (default: operator identity)")
	cmd.Flags().StringVar(&role, "role", "", "Caller role passed to guard expressions")

	return cmd
}

func newWorkflowHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
		query  string
	)

	cmd := &cobra.Command{
		Use:   "history <entity-type> <entity-id>",
		Short: "Show an entity's audit history, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			entity := types.EntityRef{Type: types.EntityType(args[0]), ID: args[1]}
			entries, err := env.engine.History(cmd.Context(), entity, limit, offset)
			if err != nil {
				return err
			}

			type historyOutput struct {
				ID        string    `json:"id"`
				FromState string    `json:"from_state"`
				ToState   string    `json:"to_state"`
				Reason    string    `json:"reason,omitempty"`
				ChangedBy string    `json:"changed_by"`
				CreatedAt time.Time `json:"created_at"`
			}
			out := make([]historyOutput, 0, len(entries))
			for _, e := range entries {
				out = append(out, historyOutput{
					ID:        e.ID,
					FromState: e.FromState.String(),
					ToState:   e.ToState.String(),
					Reason:    e.Reason,
					ChangedBy: e.ChangedBy,
					CreatedAt: e.CreatedAt,
				})
			}
			return printJSON(cmd, out, query)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to return (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	addQueryFlag(cmd, &query)

	return cmd
}
