package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// GitBackend installs git-clone units. A clone is present when the
// destination holds a .git directory; upgrade fast-forwards it.
type GitBackend struct {
	runner CommandRunner
	prober prober
	logger zerolog.Logger
}

// NewGitBackend creates a new git clone backend.
func NewGitBackend(runner CommandRunner, logger zerolog.Logger) *GitBackend {
	return &GitBackend{
		runner: runner,
		prober: prober{runner: runner},
		logger: logger.With().Str("component", "git-backend").Logger(),
	}
}

// Probe implements engine.DetectionBackend.
func (b *GitBackend) Probe(ctx context.Context, unit engine.Unit, _ *engine.State) (engine.ProbeResult, error) {
	if hasOverride(unit) {
		return b.prober.probe(ctx, unit, "")
	}

	dest, err := destination(unit)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	info, err := os.Stat(filepath.Join(dest, ".git"))
	switch {
	case os.IsNotExist(err):
		return engine.ProbeResult{}, nil
	case err != nil:
		return engine.ProbeResult{}, fmt.Errorf("failed to stat %s: %w", dest, err)
	case !info.IsDir():
		return engine.ProbeResult{}, nil
	}

	result := engine.ProbeResult{Present: true}
	if !unit.Upgrade {
		return result, nil
	}

	// Behind the remote counts as outdated.
	fetch, err := b.runner.Run(ctx, Command{Name: "git", Args: []string{"-C", dest, "fetch", "--quiet"}})
	if err != nil {
		return result, err
	}
	if fetch.ExitCode != 0 {
		return result, fmt.Errorf("git fetch in %s exited with status %d: %s", dest, fetch.ExitCode, firstLine(fetch.Output))
	}

	status, err := b.runner.Run(ctx, Command{Name: "git", Args: []string{"-C", dest, "rev-list", "--count", "HEAD..@{upstream}"}})
	if err != nil {
		return result, err
	}
	if status.ExitCode == 0 && firstLine(status.Output) != "0" {
		result.Outdated = true
	}
	return result, nil
}

// Execute implements engine.InstallBackend.
func (b *GitBackend) Execute(ctx context.Context, unit engine.Unit, action engine.Action, _ *engine.State) (engine.ExecResult, error) {
	dest, err := destination(unit)
	if err != nil {
		return engine.ExecResult{}, err
	}

	var cmd Command
	if action == engine.ActionUpgrade {
		cmd = Command{Name: "git", Args: []string{"-C", dest, "pull", "--ff-only", "--quiet"}}
	} else {
		if unit.Source == "" {
			return engine.ExecResult{}, fmt.Errorf("unit %s has no source URL", unit.ID)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return engine.ExecResult{}, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
		}

		args := []string{"clone", "--depth", "1"}
		if unit.Ref != "" {
			args = append(args, "--branch", unit.Ref)
		}
		args = append(args, unit.Args...)
		cmd = Command{Name: "git", Args: append(args, unit.Source, dest)}
	}

	b.logger.Info().Str("unit", unit.ID).Str("command", cmd.String()).Msg("Running git")

	res, err := b.runner.Run(ctx, cmd)
	if err != nil {
		return engine.ExecResult{}, err
	}
	return engine.ExecResult{ExitCode: res.ExitCode, Output: res.Output}, nil
}
