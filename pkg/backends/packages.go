package backends

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

var brewEnv = map[string]string{
	"HOMEBREW_NO_AUTO_UPDATE": "1",
	"HOMEBREW_NO_ENV_HINTS":   "1",
}

var aptEnv = map[string]string{
	"DEBIAN_FRONTEND": "noninteractive",
}

var systemManagers = map[string]managerSpec{
	"apt": {
		list: Command{
			Name: "dpkg-query",
			Args: []string{"-W", "-f=${Package}\t${Version}\t${db:Status-Abbrev}\n"},
		},
		parseList:     parseDpkgQuery,
		outdated:      Command{Name: "apt", Args: []string{"list", "--upgradable"}},
		parseOutdated: parseAptUpgradable,
		install: func(u engine.Unit) Command {
			return Command{
				Name:       "apt-get",
				Args:       withArgs([]string{"install", "-y", "--no-install-recommends"}, u, u.PackageName()),
				Env:        aptEnv,
				Privileged: true,
			}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{
				Name:       "apt-get",
				Args:       withArgs([]string{"install", "-y", "--only-upgrade"}, u, u.PackageName()),
				Env:        aptEnv,
				Privileged: true,
			}
		},
	},
	"brew": {
		list:          Command{Name: "brew", Args: []string{"list", "--formula", "--versions"}, Env: brewEnv},
		parseList:     parseBrewVersions,
		outdated:      Command{Name: "brew", Args: []string{"outdated", "--formula", "--quiet"}, Env: brewEnv},
		parseOutdated: parseNames,
		install: func(u engine.Unit) Command {
			return Command{Name: "brew", Args: withArgs([]string{"install"}, u, u.PackageName()), Env: brewEnv}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "brew", Args: withArgs([]string{"upgrade"}, u, u.PackageName()), Env: brewEnv}
		},
		key: lastSegment,
	},
	"brew-cask": {
		list:          Command{Name: "brew", Args: []string{"list", "--cask", "--versions"}, Env: brewEnv},
		parseList:     parseBrewVersions,
		outdated:      Command{Name: "brew", Args: []string{"outdated", "--cask", "--quiet"}, Env: brewEnv},
		parseOutdated: parseNames,
		install: func(u engine.Unit) Command {
			return Command{Name: "brew", Args: withArgs([]string{"install", "--cask"}, u, u.PackageName()), Env: brewEnv}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "brew", Args: withArgs([]string{"upgrade", "--cask"}, u, u.PackageName()), Env: brewEnv}
		},
		key: lastSegment,
	},
	"snap": {
		list:          Command{Name: "snap", Args: []string{"list"}},
		parseList:     parseTable,
		outdated:      Command{Name: "snap", Args: []string{"refresh", "--list"}},
		parseOutdated: parseTable,
		install: func(u engine.Unit) Command {
			return Command{Name: "snap", Args: withArgs([]string{"install"}, u, u.PackageName()), Privileged: true}
		},
		upgrade: func(u engine.Unit) Command {
			return Command{Name: "snap", Args: withArgs([]string{"refresh"}, u, u.PackageName()), Privileged: true}
		},
	},
}

// NewPackageBackend creates the backend for system-package, cask and snap
// units. defaultManager is used for system packages that do not name one.
func NewPackageBackend(runner CommandRunner, defaultManager string, logger zerolog.Logger) *ManagerBackend {
	return newManagerBackend("package-backend", runner, systemManagers, func(u engine.Unit) string {
		switch u.Kind {
		case engine.KindCask:
			return "brew-cask"
		case engine.KindSnap:
			return "snap"
		default:
			return defaultManager
		}
	}, logger)
}

// DefaultSystemManager returns the system package manager for a platform.
func DefaultSystemManager(facts *engine.Facts) string {
	switch {
	case facts == nil:
		return ""
	case facts.OS == "darwin":
		return "brew"
	case facts.Distro == "ubuntu" || facts.Distro == "debian" || facts.Distro == "pop" || facts.Distro == "linuxmint":
		return "apt"
	default:
		return ""
	}
}

// parseDpkgQuery reads `dpkg-query -W -f='${Package}\t${Version}\t${db:Status-Abbrev}\n'`.
// Only fully installed packages count.
func parseDpkgQuery(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		status := strings.TrimSpace(parts[2])
		if strings.HasPrefix(status, "ii") || strings.HasPrefix(status, "hi") {
			l[parts[0]] = parts[1]
		}
	}
	return l, nil
}

// parseAptUpgradable reads `apt list --upgradable`:
// "git/noble-updates 1:2.43.0-1ubuntu7.2 amd64 [upgradable from: 1:2.43.0-1ubuntu7.1]".
func parseAptUpgradable(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "[upgradable from") {
			continue
		}
		name, rest, ok := strings.Cut(line, "/")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) >= 2 {
			l[name] = fields[1]
		} else {
			l[name] = ""
		}
	}
	return l, nil
}

// parseBrewVersions reads `brew list --versions`: "python@3.12 3.12.1 3.12.0".
// The last listed version wins.
func parseBrewVersions(output string) (listing, error) {
	l := make(listing)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
		case 1:
			l[fields[0]] = ""
		default:
			l[fields[0]] = fields[len(fields)-1]
		}
	}
	return l, nil
}
