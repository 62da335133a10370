package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	catalogPaths []string
	platform     string
	logLevel     string
	logFormat    string
	verbose      bool
	jsonOutput   bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "converge",
		Short: "converge - declarative workstation setup",
		Long: `converge brings a machine to the state described by a catalog of units:
packages, casks, snaps, language tools, downloaded binaries, git clones,
installer scripts and generated shell configuration.

Every run probes the machine first, so running it again is safe: units
already present are left alone and only missing ones are installed.

Features:
  - Catalogs in YAML, TOML, JSON or CUE, with Starlark "when" predicates
  - Dependency-ordered stages; a failure only skips its dependents
  - Deterministic shell config rendering with backups before overwrite
  - Rego policy checks before anything is installed
  - Run history in SQLite, metrics and traces`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (default $XDG_CONFIG_HOME/converge/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&catalogPaths, "catalog", nil, "catalog files or directories (default: built-in catalog for the platform)")
	rootCmd.PersistentFlags().StringVar(&platform, "platform", "", "override the detected platform (darwin, ubuntu)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
