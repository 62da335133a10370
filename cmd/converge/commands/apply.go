package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/lock"
	"github.com/andrew-tomago/dotfiles/pkg/report"
	"github.com/andrew-tomago/dotfiles/pkg/stores"
)

// applyOptions are the flags shared by apply and watch.
type applyOptions struct {
	only   []string
	dryRun bool
}

func newApplyCommand() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the machine to the catalog",
		Long: `Converge the machine to the catalog.

This command:
  - Loads the catalog and checks it against policies
  - Orders units into dependency stages
  - Probes each unit and installs or upgrades only what is needed
  - Renders generated shell files from the units that ended up present
  - Records the run in the history journal

A unit whose install fails only skips the units that depend on it.
Interrupting the run lets the current unit finish and still prints the
report.

Exit codes: 0 converged, 1 fatal error, 2 an install failed, 3 only
generated files failed.`,
		Example: `  # Converge with the built-in catalog for this platform
  converge apply

  # Install one tool and whatever it needs
  converge apply --only lazygit

  # Show what would change without touching the machine
  converge apply --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			res, err := runApply(cmd.Context(), env, opts)
			if err != nil {
				return err
			}
			return reportExit(res)
		},
	}

	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "converge only these units and their dependencies")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "probe only; report what would change")

	return cmd
}

// runApply performs one full run and prints its report.
func runApply(ctx context.Context, env *environment, opts applyOptions) (*engine.RunReport, error) {
	if !opts.dryRun {
		held, err := lock.Acquire(env.settings.LockPath())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := held.Release(); err != nil {
				env.logger.Warn().Err(err).Msg("Failed to release lock")
			}
		}()
	}

	loaded, err := env.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	catalog := loaded.Catalog
	if len(opts.only) > 0 {
		if catalog, err = catalog.Select(opts.only); err != nil {
			return nil, err
		}
	}

	if _, err := env.checkPolicies(ctx, catalog, "apply"); err != nil {
		return nil, err
	}

	registry, renderBackend := env.backends(opts.dryRun)
	runner := engine.NewRunner(registry, env.telemetry.Observer(), env.logger)

	ctx = env.telemetry.WithContext(ctx)
	result, err := runner.Run(ctx, catalog, engine.RunOptions{DryRun: opts.dryRun})
	if err != nil {
		return nil, err
	}
	result.Renders = renderBackend.Records()

	if env.settings.History.Enabled && !opts.dryRun {
		recordHistory(ctx, env, result)
	}

	if jsonOutput {
		data, err := report.JSON(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(env.out, string(data))
	} else {
		fmt.Fprint(env.out, env.formatter.Summarize(result))
	}

	return result, nil
}

// recordHistory journals the run. The journal is informational, so
// failures are logged rather than failing the run.
func recordHistory(ctx context.Context, env *environment, result *engine.RunReport) {
	// A cancelled run is still journaled.
	ctx = context.WithoutCancel(ctx)

	store, err := stores.Open(ctx, env.settings.History.Path)
	if err != nil {
		env.logger.Warn().Err(err).Str("path", env.settings.History.Path).Msg("Failed to open history")
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, env.facts.Platform(), result); err != nil {
		env.logger.Warn().Err(err).Msg("Failed to record run")
		return
	}

	pruned, err := store.Prune(ctx, env.settings.History.Keep)
	if err != nil {
		env.logger.Warn().Err(err).Msg("Failed to prune history")
		return
	}
	if pruned > 0 {
		env.logger.Debug().Int64("runs", pruned).Msg("Pruned history")
	}
}
