package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every unit without changing anything",
		Long: `Probe every unit and report whether it is current, stale or absent.

Nothing is installed or written and no lock is taken, so status is safe
to run alongside an apply.`,
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

			registry, _ := env.backends(true)
			results, err := engine.NewRunner(registry, nil, env.logger).Survey(cmd.Context(), loaded.Catalog)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode status: %w", err)
				}
				fmt.Fprintln(env.out, string(data))
				return nil
			}
			fmt.Fprint(env.out, env.formatter.Survey(results))
			return nil
		},
	}

	return cmd
}
