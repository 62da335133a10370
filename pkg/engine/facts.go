package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

// Facts describes the local machine. Catalog predicates are evaluated against them.
type Facts struct {
	OS             string `json:"os"`
	Arch           string `json:"arch"`
	Distro         string `json:"distro"`
	DistroVersion  string `json:"distro_version"`
	DistroCodename string `json:"distro_codename,omitempty"`
	Kernel         string `json:"kernel,omitempty"`
	Hostname       string `json:"hostname,omitempty"`
	Home           string `json:"home,omitempty"`
	Shell          string `json:"shell,omitempty"`
}

// Platform returns the catalog platform name: "darwin" on macOS, the
// distribution ID on Linux, or the OS name otherwise.
func (f *Facts) Platform() string {
	if f.OS == "linux" && f.Distro != "" {
		return f.Distro
	}
	return f.OS
}

// WithPlatform returns a copy of the facts pretending to be platform.
// "darwin" maps to the OS; anything else is treated as a Linux distribution.
func (f *Facts) WithPlatform(platform string) *Facts {
	c := *f
	if platform == "darwin" {
		c.OS = "darwin"
		c.Distro = "macos"
		return &c
	}
	c.OS = "linux"
	c.Distro = platform
	return &c
}

// ToMap returns the facts as a flat map keyed by JSON field name.
func (f *Facts) ToMap() map[string]any {
	return map[string]any{
		"os":              f.OS,
		"arch":            f.Arch,
		"distro":          f.Distro,
		"distro_version":  f.DistroVersion,
		"distro_codename": f.DistroCodename,
		"kernel":          f.Kernel,
		"hostname":        f.Hostname,
		"home":            f.Home,
		"shell":           f.Shell,
		"platform":        f.Platform(),
	}
}

// FactsCollector collects facts from the local machine.
type FactsCollector struct {
	osReleasePath string
	command       func(ctx context.Context, name string, args ...string) (string, error)
}

// NewFactsCollector creates a collector reading the live machine.
func NewFactsCollector() *FactsCollector {
	return &FactsCollector{
		osReleasePath: "/etc/os-release",
		command: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return strings.TrimSpace(string(out)), err
		},
	}
}

// Collect gathers facts. Individual probes that fail leave their field empty.
func (c *FactsCollector) Collect(ctx context.Context) (*Facts, error) {
	facts := &Facts{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		Home:  os.Getenv("HOME"),
		Shell: os.Getenv("SHELL"),
	}

	if hostname, err := os.Hostname(); err == nil {
		facts.Hostname = hostname
	}

	if out, err := c.command(ctx, "uname", "-r"); err == nil {
		facts.Kernel = out
	}

	switch facts.OS {
	case "darwin":
		facts.Distro = "macos"
		if out, err := c.command(ctx, "sw_vers", "-productVersion"); err == nil {
			facts.DistroVersion = out
		} else {
			log.Debug().Err(err).Msg("Failed to read macOS version")
		}
	case "linux":
		data, err := os.ReadFile(c.osReleasePath)
		if err != nil {
			log.Debug().Err(err).Str("path", c.osReleasePath).Msg("Failed to read os-release")
			break
		}
		release := ParseOSRelease(string(data))
		facts.Distro = release["ID"]
		facts.DistroVersion = release["VERSION_ID"]
		facts.DistroCodename = release["VERSION_CODENAME"]
	}

	return facts, nil
}

// ParseOSRelease parses the KEY=value lines of an os-release file.
func ParseOSRelease(content string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	return values
}

// ExpandHome replaces a leading "~" or "$HOME" with the user's home directory.
func ExpandHome(path string) string {
	var rest string
	switch {
	case path == "~" || path == "$HOME":
	case strings.HasPrefix(path, "~/"):
		rest = path[2:]
	case strings.HasPrefix(path, "$HOME/"):
		rest = path[6:]
	default:
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
