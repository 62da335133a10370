package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		only []string
		dot  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the stages a run would execute",
		Long: `Show how the catalog is ordered into stages.

Units in a stage only depend on units in earlier stages. The plan does
not probe the machine; use "converge status" or "apply --dry-run" to see
what would actually change.`,
		Example: `  # Print the stages
  converge plan

  # Render the dependency graph
  converge plan --dot | dot -Tsvg > plan.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			loaded, err := env.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			catalog := loaded.Catalog
			if len(only) > 0 {
				if catalog, err = catalog.Select(only); err != nil {
					return err
				}
			}

			plan, err := engine.NewPlanner(env.logger).Plan(catalog)
			if err != nil {
				return err
			}

			switch {
			case dot:
				fmt.Fprint(env.out, plan.ToDOT())
			case jsonOutput:
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode plan: %w", err)
				}
				fmt.Fprintln(env.out, string(data))
			default:
				fmt.Fprint(env.out, env.formatter.Plan(plan))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "plan only these units and their dependencies")
	cmd.Flags().BoolVar(&dot, "dot", false, "print the dependency graph in Graphviz DOT format")

	return cmd
}
