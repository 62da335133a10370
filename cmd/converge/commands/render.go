package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/lock"
	"github.com/andrew-tomago/dotfiles/pkg/render"
)

func newRenderCommand() *cobra.Command {
	var (
		diff   bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "render [unit...]",
		Short: "Regenerate shell configuration files",
		Long: `Regenerate generated-file units from the units currently present.

Only the generated files are touched; nothing is installed. A file whose
content would change is backed up next to itself before it is replaced.
With no arguments every generated file in the catalog is rendered.`,
		Example: `  # Show what would change in ~/.zshrc.d/converge.zsh
  converge render --diff zsh-env

  # Rewrite every generated file
  converge render`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			if !diff && !dryRun {
				held, err := lock.Acquire(env.settings.LockPath())
				if err != nil {
					return err
				}
				defer func() { _ = held.Release() }()
			}

			loaded, err := env.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			catalog := loaded.Catalog

			targets, err := generatedUnits(catalog, args)
			if err != nil {
				return err
			}

			// Present units decide what each file contains.
			registry, _ := env.backends(true)
			results, err := engine.NewRunner(registry, nil, env.logger).Survey(cmd.Context(), catalog)
			if err != nil {
				return err
			}
			state := engine.NewState(catalog)
			for _, res := range results {
				if res.Unit.Kind != engine.KindGeneratedFile && res.Detection.Presence != engine.PresenceAbsent {
					state.MarkPresent(res.Unit.ID)
				}
			}

			renderer := render.NewRenderer(env.logger, render.WithDryRun(dryRun))
			failed := 0
			for _, unit := range targets {
				artifact, err := render.ArtifactFor(unit)
				if err != nil {
					return err
				}
				caps := state.CapabilitiesFor(unit)

				if diff {
					d, err := renderer.Diff(artifact, caps)
					if err != nil {
						env.logger.Error().Err(err).Str("unit", unit.ID).Msg("Diff failed")
						failed++
						continue
					}
					fmt.Fprint(env.out, d)
					continue
				}

				result, err := renderer.Render(artifact, caps)
				if err != nil {
					env.logger.Error().Err(err).Str("unit", unit.ID).Msg("Render failed")
					failed++
					continue
				}
				line := fmt.Sprintf("%s  %s", result.Kind, result.Path)
				if result.BackupPath != "" {
					line += fmt.Sprintf(" (backup %s)", result.BackupPath)
				}
				fmt.Fprintln(env.out, line)
			}

			if failed > 0 {
				return &ExitError{
					Code: ExitRenderFailed,
					Err:  fmt.Errorf("%d generated files could not be rendered", failed),
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&diff, "diff", false, "print a unified diff instead of writing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be written without writing")

	return cmd
}

// generatedUnits returns the generated-file units named by ids, or all of
// them when ids is empty.
func generatedUnits(catalog *engine.Catalog, ids []string) ([]engine.Unit, error) {
	if len(ids) == 0 {
		var units []engine.Unit
		for _, u := range catalog.Units() {
			if u.Kind == engine.KindGeneratedFile {
				units = append(units, u)
			}
		}
		return units, nil
	}

	units := make([]engine.Unit, 0, len(ids))
	for _, id := range ids {
		u, ok := catalog.Lookup(id)
		if !ok {
			return nil, engine.NewConfigurationError(fmt.Sprintf("unknown unit: %s", id), nil).
				WithCode(engine.ErrCodeValidation).WithUnit(id)
		}
		if u.Kind != engine.KindGeneratedFile {
			return nil, engine.NewConfigurationError(fmt.Sprintf("unit %s is not a generated file", id), nil).
				WithCode(engine.ErrCodeValidation).WithUnit(id)
		}
		units = append(units, u)
	}
	return units, nil
}
