package backends

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// ScriptBackend installs units through a downloaded installer script run by bash.
// Detection relies on the unit's detect settings, defaulting to a command
// named after the unit.
type ScriptBackend struct {
	fetcher *Fetcher
	runner  CommandRunner
	prober  prober
	shell   string
	tmpDir  string
	logger  zerolog.Logger
}

// NewScriptBackend creates a new script backend.
func NewScriptBackend(fetcher *Fetcher, runner CommandRunner, logger zerolog.Logger) *ScriptBackend {
	return &ScriptBackend{
		fetcher: fetcher,
		runner:  runner,
		prober:  prober{runner: runner},
		shell:   "/bin/bash",
		tmpDir:  os.TempDir(),
		logger:  logger.With().Str("component", "script-backend").Logger(),
	}
}

// Probe implements engine.DetectionBackend.
func (b *ScriptBackend) Probe(ctx context.Context, unit engine.Unit, _ *engine.State) (engine.ProbeResult, error) {
	return b.prober.probe(ctx, unit, unit.PackageName())
}

// Execute implements engine.InstallBackend. Upgrading re-runs the installer.
func (b *ScriptBackend) Execute(ctx context.Context, unit engine.Unit, action engine.Action, _ *engine.State) (engine.ExecResult, error) {
	if unit.Source == "" {
		return engine.ExecResult{}, fmt.Errorf("unit %s has no installer source", unit.ID)
	}

	script, digest, err := b.fetcher.FetchFile(ctx, unit.Source, b.tmpDir)
	if err != nil {
		return engine.ExecResult{}, err
	}
	defer os.Remove(script)

	if unit.Checksum != "" && !strings.EqualFold(unit.Checksum, digest) {
		return engine.ExecResult{}, fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, unit.Source, unit.Checksum, digest)
	}

	b.logger.Info().
		Str("unit", unit.ID).
		Str("action", string(action)).
		Str("source", unit.Source).
		Msg("Running installer script")

	res, err := b.runner.Run(ctx, Command{
		Name: b.shell,
		Args: append([]string{script}, unit.Args...),
		Env:  map[string]string{"NONINTERACTIVE": "1"},
	})
	if err != nil {
		return engine.ExecResult{}, err
	}
	return engine.ExecResult{ExitCode: res.ExitCode, Output: res.Output}, nil
}
