package commands

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andrew-tomago/dotfiles/pkg/backends"
	"github.com/andrew-tomago/dotfiles/pkg/config"
	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/policy"
	"github.com/andrew-tomago/dotfiles/pkg/render"
	"github.com/andrew-tomago/dotfiles/pkg/report"
	"github.com/andrew-tomago/dotfiles/pkg/telemetry"
)

// environment is what every command needs: settings with flags applied,
// telemetry, local facts and an output formatter.
type environment struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	facts     *engine.Facts
	out       io.Writer
	formatter *report.Formatter
}

// setup loads settings, applies global flags and collects facts.
func setup(cmd *cobra.Command) (*environment, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}

	if len(catalogPaths) > 0 {
		settings.Catalogs = make([]string, len(catalogPaths))
		for i, p := range catalogPaths {
			settings.Catalogs[i] = engine.ExpandHome(p)
		}
	}
	if platform != "" {
		settings.Platform = platform
	}
	if logLevel != "" {
		settings.Telemetry.Logging.Level = logLevel
	}
	if logFormat != "" {
		settings.Telemetry.Logging.Format = logFormat
	}
	if verbose {
		settings.Telemetry.Logging.Level = "debug"
	}
	settings.Telemetry.ServiceVersion = buildVersion

	tel, err := telemetry.NewTelemetry(&settings.Telemetry, cmd.ErrOrStderr())
	if err != nil {
		return nil, engine.NewConfigurationError("invalid telemetry settings", err).
			WithCode(engine.ErrCodeValidation)
	}

	logger := tel.Logger.Zerolog()

	facts, err := engine.NewFactsCollector().Collect(cmd.Context())
	if err != nil {
		return nil, err
	}
	if settings.Platform != "" {
		facts = facts.WithPlatform(settings.Platform)
	}
	logger.Debug().
		Str("platform", facts.Platform()).
		Str("arch", facts.Arch).
		Str("version", facts.DistroVersion).
		Msg("Facts collected")

	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok {
		color = report.ColorEnabled(f)
	}

	return &environment{
		settings:  settings,
		telemetry: tel,
		logger:    logger,
		facts:     facts,
		out:       out,
		formatter: report.NewFormatter(out, color),
	}, nil
}

// close flushes telemetry. It runs even when the command was cancelled.
func (e *environment) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.telemetry.Shutdown(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

// loadCatalog reads the configured catalogs, or the built-in one for the
// platform when none are configured.
func (e *environment) loadCatalog(ctx context.Context) (*config.LoadResult, error) {
	loader := config.NewLoader(e.logger)

	var (
		result *config.LoadResult
		err    error
	)
	if len(e.settings.Catalogs) == 0 {
		result, err = loader.LoadBuiltin(ctx, e.facts.Platform(), e.facts)
	} else {
		result, err = loader.Load(ctx, e.settings.Catalogs, e.facts)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Strs("files", result.Files).
		Int("units", result.Catalog.Len()).
		Strs("excluded", result.Excluded).
		Msg("Catalog loaded")
	return result, nil
}

// backends builds the backend registry, with generated files handled by a
// renderer whose records end up in the run report.
func (e *environment) backends(dryRun bool) (*engine.BackendRegistry, *render.Backend) {
	registry := backends.NewRegistry(backends.Options{
		DefaultManager: backends.DefaultSystemManager(e.facts),
	}, e.logger)

	renderBackend := render.NewBackend(render.NewRenderer(e.logger, render.WithDryRun(dryRun)))
	renderBackend.Register(registry)
	return registry, renderBackend
}

// checkPolicies evaluates policies over catalog. Warnings are logged;
// blocking violations are returned as a configuration error.
func (e *environment) checkPolicies(ctx context.Context, catalog *engine.Catalog, operation string) (*policy.Result, error) {
	if !e.settings.Policy.Enabled {
		return &policy.Result{Allowed: true}, nil
	}

	eng, err := policy.NewEngine(e.logger)
	if err != nil {
		return nil, err
	}
	if len(e.settings.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, e.settings.Policy.Paths); err != nil {
			return nil, err
		}
	}

	result, err := eng.Evaluate(ctx, catalog, e.facts.Platform(), operation)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("unit", w.Unit).
			Msg(w.Message)
	}
	return result, result.Err()
}
