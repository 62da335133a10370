package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// prober answers presence and version questions through a CommandRunner.
type prober struct {
	runner CommandRunner
}

// hasOverride reports whether the unit carries its own detection settings.
func hasOverride(unit engine.Unit) bool {
	return unit.Detect.Command != "" || unit.Detect.Path != ""
}

// probe checks Detect.Path and then the command on PATH, falling back to
// defaultCommand when the unit names none.
func (p prober) probe(ctx context.Context, unit engine.Unit, defaultCommand string) (engine.ProbeResult, error) {
	if unit.Detect.Path != "" {
		if _, err := os.Stat(engine.ExpandHome(unit.Detect.Path)); err != nil {
			if os.IsNotExist(err) {
				return engine.ProbeResult{}, nil
			}
			return engine.ProbeResult{}, fmt.Errorf("failed to stat %s: %w", unit.Detect.Path, err)
		}
		if unit.Detect.Command == "" && len(unit.Detect.VersionArgs) == 0 {
			return engine.ProbeResult{Present: true}, nil
		}
	}

	command := unit.Detect.Command
	if command == "" {
		command = defaultCommand
	}
	if command == "" {
		return engine.ProbeResult{}, fmt.Errorf("unit %s has no detection command", unit.ID)
	}

	path, err := p.locate(command)
	if err != nil {
		return engine.ProbeResult{}, nil
	}

	result := engine.ProbeResult{Present: true}
	if len(unit.Detect.VersionArgs) == 0 {
		return result, nil
	}

	version, err := p.version(ctx, path, unit.Detect)
	if err != nil {
		return result, err
	}
	result.Version = version
	return result, nil
}

// locate resolves command to a path. Commands containing a path separator are
// checked on disk instead of PATH.
func (p prober) locate(command string) (string, error) {
	command = engine.ExpandHome(command)
	if strings.ContainsRune(command, filepath.Separator) {
		info, err := os.Stat(command)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", command)
		}
		return command, nil
	}
	return p.runner.LookPath(command)
}

// version runs the version command and extracts the version string.
func (p prober) version(ctx context.Context, path string, spec engine.DetectSpec) (string, error) {
	res, err := p.runner.Run(ctx, Command{Name: path, Args: spec.VersionArgs})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s %s exited with status %d", path, strings.Join(spec.VersionArgs, " "), res.ExitCode)
	}
	return ExtractVersion(res.Output, spec.VersionPattern)
}

// ExtractVersion pulls a version out of command output. With a pattern, the
// first capture group (or the whole match) wins; otherwise the first line is
// returned for the caller to canonicalize.
func ExtractVersion(output, pattern string) (string, error) {
	output = strings.TrimSpace(output)

	if pattern == "" {
		line, _, _ := strings.Cut(output, "\n")
		return strings.TrimSpace(line), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid version pattern %q: %w", pattern, err)
	}

	m := re.FindStringSubmatch(output)
	switch {
	case m == nil:
		return "", nil
	case len(m) > 1:
		return m[1], nil
	default:
		return m[0], nil
	}
}
