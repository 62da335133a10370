package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/config"
	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run apply whenever catalogs or policies change",
		Long: `Run apply once, then again each time a catalog, policy or the settings
file changes. Bursts of changes, such as an editor writing a file in
several steps, are coalesced into one run (see watch.debounce).

A failing run is reported and watching continues. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			paths := append([]string{}, env.settings.Catalogs...)
			paths = append(paths, env.settings.Policy.Paths...)
			settingsPath := configPath
			if settingsPath == "" {
				settingsPath = config.DefaultSettingsPath()
			}
			settingsPath = filepath.Clean(settingsPath)
			if _, err := os.Stat(settingsPath); err == nil {
				paths = append(paths, settingsPath)
			}
			if len(paths) == 0 {
				return engine.NewConfigurationError("nothing to watch: the built-in catalog cannot change", nil).
					WithCode(engine.ErrCodeValidation)
			}

			watcher, err := config.NewWatcher(env.logger, env.settings.Watch.Debounce)
			if err != nil {
				return err
			}
			if err := watcher.Add(paths...); err != nil {
				_ = watcher.Close()
				return err
			}

			converge := func(ctx context.Context) {
				if _, err := runApply(ctx, env, opts); err != nil {
					env.logger.Error().Err(err).Msg("Run failed")
				}
			}

			converge(cmd.Context())
			env.logger.Info().Strs("paths", paths).Msg("Watching for changes")

			return watcher.Run(cmd.Context(), func(ctx context.Context, changed []string) {
				// Settings are read once at start; catalogs and policies are
				// reloaded by every run.
				for _, p := range changed {
					if p == settingsPath {
						env.logger.Warn().Msg("Settings changed; restart watch to apply them")
					}
				}
				converge(ctx)
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "converge only these units and their dependencies")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "probe only; report what would change")

	return cmd
}
