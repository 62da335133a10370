package backends

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

var languageManagers = map[string]managerSpec{
	"npm": {
		list:          Command{Name: "npm", Args: []string{"ls", "-g", "--depth=0", "--json"}},
		parseList:     parseNpmList,
		outdated:      Command{Name: "npm", Args: []string{"outdated", "-g", "--json"}},
		parseOutdated: parseNpmOutdated,
		// npm exits 1 when the tree has problems or packages are outdated.
		okExit: []int{1},
		install: func(u engine.Unit) Command {
			return Command{Name: "npm", Args: withArgs([]string{"install", "-g"}, u, u.PackageName())}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "npm", Args: withArgs([]string{"install", "-g"}, u, u.PackageName()+"@latest")}
		},
	},
	"pipx": {
		list:      Command{Name: "pipx", Args: []string{"list", "--json"}},
		parseList: parsePipxList,
		install: func(u engine.Unit) Command {
			return Command{Name: "pipx", Args: withArgs([]string{"install"}, u, u.PackageName())}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "pipx", Args: withArgs([]string{"upgrade"}, u, u.PackageName())}
		},
	},
	"uv": {
		list:      Command{Name: "uv", Args: []string{"tool", "list"}},
		parseList: parseUvToolList,
		install: func(u engine.Unit) Command {
			return Command{Name: "uv", Args: withArgs([]string{"tool", "install"}, u, u.PackageName())}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "uv", Args: withArgs([]string{"tool", "upgrade"}, u, u.PackageName())}
		},
	},
	"cargo": {
		list:      Command{Name: "cargo", Args: []string{"install", "--list"}},
		parseList: parseCargoList,
		install: func(u engine.Unit) Command {
			return Command{Name: "cargo", Args: withArgs([]string{"install", "--locked"}, u, u.PackageName())}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "cargo", Args: withArgs([]string{"install", "--locked", "--force"}, u, u.PackageName())}
		},
	},
	"go": {
		install: func(u engine.Unit) Command {
			return Command{Name: "go", Args: withArgs([]string{"install"}, u, goModulePath(u.PackageName()))}
		},
		command: func(u engine.Unit) string {
			return goBinaryName(u.PackageName())
		},
	},
	"gem": {
		list:      Command{Name: "gem", Args: []string{"list", "--local"}},
		parseList: parseGemList,
		install: func(u engine.Unit) Command {
			return Command{Name: "gem", Args: withArgs([]string{"install", "--no-document"}, u, u.PackageName())}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "gem", Args: withArgs([]string{"update", "--no-document"}, u, u.PackageName())}
		},
	},
}

// NewLanguageBackend creates the backend for language-package units.
func NewLanguageBackend(runner CommandRunner, logger zerolog.Logger) *ManagerBackend {
	return newManagerBackend("language-backend", runner, languageManagers, nil, logger)
}

// parseNpmList reads `npm ls -g --depth=0 --json`.
func parseNpmList(output string) (listing, error) {
	var tree struct {
		Dependencies map[string]struct {
			Version string `json:"version"`
		} `json:"dependencies"`
	}
	if strings.TrimSpace(output) == "" {
		return listing{}, nil
	}
	if err := json.Unmarshal([]byte(output), &tree); err != nil {
		return nil, err
	}

	l := make(listing, len(tree.Dependencies))
	for name, dep := range tree.Dependencies {
		l[name] = dep.Version
	}
	return l, nil
}

// parseNpmOutdated reads `npm outdated -g --json`.
func parseNpmOutdated(output string) (listing, error) {
	var outdated map[string]struct {
		Latest string `json:"latest"`
	}
	if strings.TrimSpace(output) == "" {
		return listing{}, nil
	}
	if err := json.Unmarshal([]byte(output), &outdated); err != nil {
		return nil, err
	}

	l := make(listing, len(outdated))
	for name, pkg := range outdated {
		l[name] = pkg.Latest
	}
	return l, nil
}

// parsePipxList reads `pipx list --json`.
func parsePipxList(output string) (listing, error) {
	var list struct {
		Venvs map[string]struct {
			Metadata struct {
				MainPackage struct {
					Version string `json:"package_version"`
				} `json:"main_package"`
			} `json:"metadata"`
		} `json:"venvs"`
	}
	if err := json.Unmarshal([]byte(output), &list); err != nil {
		return nil, err
	}

	l := make(listing, len(list.Venvs))
	for name, venv := range list.Venvs {
		l[name] = venv.Metadata.MainPackage.Version
	}
	return l, nil
}

// parseUvToolList reads `uv tool list`: "ruff v0.4.1" followed by "- ruff" lines.
func parseUvToolList(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "-" {
			continue
		}
		l[fields[0]] = strings.TrimPrefix(fields[1], "v")
	}
	return l, nil
}

var cargoLine = regexp.MustCompile(`^(\S+) v(\S+?)(?: \(.*\))?:$`)

// parseCargoList reads `cargo install --list`: "ripgrep v14.1.0:" followed by
// indented binary names.
func parseCargoList(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		if m := cargoLine.FindStringSubmatch(strings.TrimRight(line, " \r")); m != nil {
			l[m[1]] = m[2]
		}
	}
	return l, nil
}

var gemLine = regexp.MustCompile(`^(\S+) \((?:default: )?([^,)\s]+)`)

// parseGemList reads `gem list --local`: "rake (13.0.6, 12.3.3)".
func parseGemList(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		if m := gemLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			l[m[1]] = m[2]
		}
	}
	return l, nil
}

// goModulePath appends @latest unless a version is pinned.
func goModulePath(pkg string) string {
	if strings.Contains(pkg, "@") {
		return pkg
	}
	return pkg + "@latest"
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// goBinaryName returns the binary `go install` produces for pkg.
func goBinaryName(pkg string) string {
	pkg, _, _ = strings.Cut(pkg, "@")
	base := path.Base(pkg)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(pkg))
	}
	return base
}
