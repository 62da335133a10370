package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/policy"
)

// validation is the machine-readable result of validate.
type validation struct {
	Files    []string       `json:"files"`
	Units    int            `json:"units"`
	Stages   int            `json:"stages"`
	Excluded []string       `json:"excluded,omitempty"`
	Policy   *policy.Result `json:"policy,omitempty"`
	Platform string         `json:"platform"`
	Kinds    map[string]int `json:"kinds"`
}

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check catalogs without touching the machine",
		Long: `Check catalogs without touching the machine.

This command checks:
  - Catalog syntax in every supported format
  - Unit fields against the unit schema
  - Dependencies on unknown units and dependency cycles
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate the configured catalogs
  converge validate

  # Validate a catalog file and fail on policy warnings
  converge validate --catalog ./tools.yaml --strict`,
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

			plan, err := engine.NewPlanner(env.logger).Plan(loaded.Catalog)
			if err != nil {
				return err
			}

			result, err := env.checkPolicies(cmd.Context(), loaded.Catalog, "validate")
			if err != nil {
				return err
			}

			v := validation{
				Files:    loaded.Files,
				Units:    loaded.Catalog.Len(),
				Stages:   len(plan.Stages),
				Excluded: loaded.Excluded,
				Policy:   result,
				Platform: env.facts.Platform(),
				Kinds:    make(map[string]int),
			}
			for _, u := range loaded.Catalog.Units() {
				v.Kinds[string(u.Kind)]++
			}

			if jsonOutput {
				data, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode validation: %w", err)
				}
				fmt.Fprintln(env.out, string(data))
			} else {
				fmt.Fprintf(env.out, "catalog ok: %d units in %d stages for %s (%d files)\n",
					v.Units, v.Stages, v.Platform, len(v.Files))
				if len(v.Excluded) > 0 {
					fmt.Fprintf(env.out, "excluded on this machine: %d units\n", len(v.Excluded))
				}
				for _, w := range result.WarningMessages() {
					fmt.Fprintf(env.out, "warning: %s\n", w)
				}
			}

			if strict && len(result.Warnings) > 0 {
				return &ExitError{
					Code: ExitFatal,
					Err:  fmt.Errorf("%d policy warnings in strict mode", len(result.Warnings)),
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat policy warnings as errors")

	return cmd
}
