package backends

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// managerSpec describes how to drive one package manager.
type managerSpec struct {
	// list prints every installed package; empty means presence is probed
	// through the unit's command instead.
	list      Command
	parseList func(output string) (listing, error)

	// outdated prints packages with a newer version available.
	outdated      Command
	parseOutdated func(output string) (listing, error)

	// okExit lists extra exit codes that still carry a usable listing.
	okExit []int

	install func(unit engine.Unit) Command
	upgrade func(unit engine.Unit) Command

	// command names the binary a unit provides, for managers without a listing.
	command func(unit engine.Unit) string

	// key maps a unit's package name to its key in the listing.
	key func(pkg string) string
}

// ManagerBackend detects and installs units through package managers,
// reading one cached listing per manager instead of querying per unit.
type ManagerBackend struct {
	name           string
	runner         CommandRunner
	specs          map[string]managerSpec
	defaultManager func(unit engine.Unit) string
	installed      *listingCache
	outdated       *listingCache
	prober         prober
	logger         zerolog.Logger
}

func newManagerBackend(name string, runner CommandRunner, specs map[string]managerSpec, defaultManager func(engine.Unit) string, logger zerolog.Logger) *ManagerBackend {
	return &ManagerBackend{
		name:           name,
		runner:         runner,
		specs:          specs,
		defaultManager: defaultManager,
		installed:      newListingCache(len(specs)),
		outdated:       newListingCache(len(specs)),
		prober:         prober{runner: runner},
		logger:         logger.With().Str("component", name).Logger(),
	}
}

// Managers returns the supported manager names, sorted.
func (b *ManagerBackend) Managers() []string {
	names := make([]string, 0, len(b.specs))
	for name := range b.specs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (b *ManagerBackend) resolve(unit engine.Unit) (string, managerSpec, error) {
	manager := unit.Manager
	if manager == "" && b.defaultManager != nil {
		manager = b.defaultManager(unit)
	}
	if manager == "" {
		return "", managerSpec{}, fmt.Errorf("unit %s does not name a package manager", unit.ID)
	}

	spec, ok := b.specs[manager]
	if !ok {
		return "", managerSpec{}, fmt.Errorf("unsupported package manager %q (supported: %s)",
			manager, strings.Join(b.Managers(), ", "))
	}
	return manager, spec, nil
}

// Probe implements engine.DetectionBackend.
func (b *ManagerBackend) Probe(ctx context.Context, unit engine.Unit, _ *engine.State) (engine.ProbeResult, error) {
	manager, spec, err := b.resolve(unit)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	key := unit.PackageName()
	if spec.key != nil {
		key = spec.key(key)
	}

	var result engine.ProbeResult
	switch {
	case hasOverride(unit) || spec.list.Name == "":
		command := ""
		if spec.command != nil {
			command = spec.command(unit)
		}
		result, err = b.prober.probe(ctx, unit, command)
		if err != nil {
			return result, err
		}
	default:
		l, err := b.installed.get(ctx, manager, b.loader(spec.list, spec.parseList, spec.okExit))
		if err != nil {
			return engine.ProbeResult{}, err
		}
		result.Version, result.Present = l[key]
	}

	if result.Present && unit.Upgrade && spec.outdated.Name != "" {
		o, err := b.outdated.get(ctx, manager, b.loader(spec.outdated, spec.parseOutdated, spec.okExit))
		if err != nil {
			return result, err
		}
		_, result.Outdated = o[key]
	}

	return result, nil
}

// Execute implements engine.InstallBackend.
func (b *ManagerBackend) Execute(ctx context.Context, unit engine.Unit, action engine.Action, _ *engine.State) (engine.ExecResult, error) {
	manager, spec, err := b.resolve(unit)
	if err != nil {
		return engine.ExecResult{}, err
	}

	cmd := spec.install(unit)
	if action == engine.ActionUpgrade && spec.upgrade != nil {
		cmd = spec.upgrade(unit)
	}

	b.logger.Info().
		Str("unit", unit.ID).
		Str("manager", manager).
		Str("action", string(action)).
		Str("command", cmd.String()).
		Msg("Running package manager")

	res, err := b.runner.Run(ctx, cmd)
	b.installed.invalidate(manager)
	b.outdated.invalidate(manager)
	if err != nil {
		return engine.ExecResult{}, err
	}

	return engine.ExecResult{ExitCode: res.ExitCode, Output: res.Output}, nil
}

// loader adapts a listing command to a listFunc.
func (b *ManagerBackend) loader(cmd Command, parse func(string) (listing, error), okExit []int) listFunc {
	return func(ctx context.Context) (listing, bool, error) {
		res, err := b.runner.Run(ctx, cmd)
		if err != nil {
			return nil, false, err
		}
		if res.ExitCode == ExitCommandNotFound {
			b.logger.Debug().Str("command", cmd.Name).Msg("Package manager not installed")
			return nil, false, nil
		}
		if res.ExitCode != 0 && !slices.Contains(okExit, res.ExitCode) {
			return nil, false, fmt.Errorf("%s exited with status %d: %s", cmd, res.ExitCode, firstLine(res.Output))
		}

		l, err := parse(res.Output)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse %s output: %w", cmd.Name, err)
		}
		return l, true, nil
	}
}

// withArgs builds a command with the unit's extra args before the package.
func withArgs(base []string, unit engine.Unit, pkg string) []string {
	args := append([]string(nil), base...)
	args = append(args, unit.Args...)
	return append(args, pkg)
}

// lastSegment strips a tap or path prefix ("homebrew/cask/ghostty" -> "ghostty").
func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// parseNames reads one package name per line.
func parseNames(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		l[lastSegment(fields[0])] = ""
	}
	return l, nil
}

// parseTable reads a whitespace-aligned table whose header starts with
// "Name"; the first two columns are name and version. Output without the
// header is an empty listing.
func parseTable(output string) (listing, error) {
	l := make(listing)
	header := false
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !header {
			header = fields[0] == "Name"
			continue
		}
		if len(fields) >= 2 {
			l[fields[0]] = fields[1]
		} else {
			l[fields[0]] = ""
		}
	}
	return l, nil
}
