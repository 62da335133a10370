package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/report"
	"github.com/andrew-tomago/dotfiles/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		Long: `List past runs from the history journal, newest first.

Use "history show <run-id>" for a run's full report and
"history unit <unit-id>" for one unit's outcomes across runs. Run IDs
may be shortened to any unambiguous prefix, such as the eight characters
printed in run summaries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, env *environment, store *stores.SQLiteStore) error {
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(env, runs)
				}
				fmt.Fprint(env.out, env.formatter.History(runs, time.Now()))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryUnitCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, env *environment, store *stores.SQLiteStore) error {
				stored, err := store.Report(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					data, err := report.JSON(stored)
					if err != nil {
						return fmt.Errorf("failed to encode report: %w", err)
					}
					fmt.Fprintln(env.out, string(data))
					return nil
				}
				fmt.Fprint(env.out, env.formatter.Summarize(stored))
				return nil
			})
		},
	}
}

func newHistoryUnitCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "unit <unit-id>",
		Short: "Show one unit's outcomes across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, env *environment, store *stores.SQLiteStore) error {
				outcomes, err := store.UnitHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(env, outcomes)
				}
				fmt.Fprint(env.out, env.formatter.UnitTimeline(args[0], outcomes))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	return cmd
}

// withHistory opens the journal for a history subcommand.
func withHistory(cmd *cobra.Command, fn func(context.Context, *environment, *stores.SQLiteStore) error) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.close(cmd.Context())

	if !env.settings.History.Enabled {
		return engine.NewConfigurationError("run history is disabled in settings", nil).
			WithCode(engine.ErrCodeValidation)
	}

	store, err := stores.Open(cmd.Context(), env.settings.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cmd.Context(), env, store)
}

func writeJSON(env *environment, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(env.out, string(data))
	return nil
}
