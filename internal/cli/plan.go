package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/migrate"
)

// PlanOutput is the JSON payload of the plan command.
type PlanOutput struct {
	Summary string                 `json:"summary"`
	Plan    *migrate.MigrationPlan `json:"plan"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the migration plan without applying it",
		Long: `Compare the current schema with the previous one and print the DDL
script, the tables that will be reloaded from the snapshot or the external
database, and the fields that will be reset.

Column type changes alone never recreate a table; they are listed as
warnings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, cmd)
		},
	}

	addPathFlags(cmd, pathFlagsSchema)

	return cmd
}

func runPlan(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	input, err := s.loadInput()
	if err != nil {
		return err
	}

	plan := migrate.Plan(input.Previous, input.Current, input.Changes)

	if s.formatter.Format == "json" {
		return s.formatter.Success(PlanOutput{Summary: plan.Summary(), Plan: plan})
	}
	writePlanText(s.formatter, plan)
	return nil
}

func writePlanText(f *OutputFormatter, plan *migrate.MigrationPlan) {
	w := f.Writer
	fmt.Fprintf(w, "Plan: %s\n", plan.Summary())
	if plan.Empty() && len(plan.Warnings) == 0 {
		return
	}
	if sql := plan.SQL(); sql != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, sql)
	}
	if len(plan.Reloads) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reload from snapshot:")
		for _, name := range plan.Reloads {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if len(plan.External) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reload from external database:")
		for _, name := range plan.External {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if len(plan.Clears) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reset fields:")
		for _, c := range plan.Clears {
			fmt.Fprintf(w, "  %s.%s = %v\n", c.Entity, c.Field, c.Default)
		}
	}
	for _, warning := range plan.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
