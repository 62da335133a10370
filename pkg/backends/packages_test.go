package backends

import (
	"context"
	"strings"
	"testing"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

const brewList = "brew list --formula --versions"

func brewUnit(id string) engine.Unit {
	return engine.Unit{ID: id, Kind: engine.KindSystemPackage, Manager: "brew"}
}

func TestPackageBackend_ProbeFromListing(t *testing.T) {
	runner := newFakeRunner()
	runner.respond(brewList, 0, "git 2.43.0\nlazygit 0.40.2\npython@3.12 3.12.1 3.12.0\n")
	backend := NewPackageBackend(runner, "", testLogger())

	tests := []struct {
		unit    engine.Unit
		present bool
		version string
	}{
		{unit: brewUnit("git"), present: true, version: "2.43.0"},
		{unit: brewUnit("fzf"), present: false},
		{unit: brewUnit("python@3.12"), present: true, version: "3.12.0"},
		{unit: engine.Unit{ID: "lg", Kind: engine.KindSystemPackage, Manager: "brew", Package: "jesseduffield/lazygit/lazygit"}, present: true, version: "0.40.2"},
	}

	for _, tt := range tests {
		res, err := backend.Probe(context.Background(), tt.unit, nil)
		if err != nil {
			t.Fatalf("Expected no error for %s, got: %v", tt.unit.ID, err)
		}
		if res.Present != tt.present || res.Version != tt.version {
			t.Errorf("Probe(%s) = %+v, want present=%v version=%q", tt.unit.ID, res, tt.present, tt.version)
		}
	}

	if n := runner.count(brewList); n != 1 {
		t.Errorf("Expected one listing for the whole run, got %d", n)
	}
}

func TestPackageBackend_Outdated(t *testing.T) {
	runner := newFakeRunner()
	runner.respond(brewList, 0, "git 2.43.0\nlazygit 0.40.2\n")
	runner.respond("brew outdated --formula --quiet", 0, "lazygit\n")
	backend := NewPackageBackend(runner, "", testLogger())

	lazygit := brewUnit("lazygit")
	lazygit.Upgrade = true
	res, _ := backend.Probe(context.Background(), lazygit, nil)
	if !res.Outdated {
		t.Error("Expected lazygit outdated")
	}

	git := brewUnit("git")
	git.Upgrade = true
	res, _ = backend.Probe(context.Background(), git, nil)
	if res.Outdated {
		t.Error("Expected git current")
	}

	res, _ = backend.Probe(context.Background(), brewUnit("lazygit"), nil)
	if res.Outdated {
		t.Error("Expected outdated ignored without upgrade")
	}
}

func TestPackageBackend_ExecuteInvalidatesListing(t *testing.T) {
	runner := newFakeRunner()
	runner.respond(brewList, 0, "git 2.43.0\n")
	backend := NewPackageBackend(runner, "", testLogger())
	fzf := brewUnit("fzf")

	if res, _ := backend.Probe(context.Background(), fzf, nil); res.Present {
		t.Fatal("Expected fzf absent before install")
	}

	runner.respond("brew install fzf", 0, "==> Pouring fzf")
	out, err := backend.Execute(context.Background(), fzf, engine.ActionInstall, nil)
	if err != nil || out.ExitCode != 0 {
		t.Fatalf("Expected clean install, got %+v, %v", out, err)
	}

	runner.respond(brewList, 0, "git 2.43.0\nfzf 0.46.0\n")
	if res, _ := backend.Probe(context.Background(), fzf, nil); !res.Present {
		t.Error("Expected fzf present after install")
	}
	if n := runner.count(brewList); n != 2 {
		t.Errorf("Expected listing reloaded after install, got %d listings", n)
	}
}

func TestPackageBackend_MissingManager(t *testing.T) {
	runner := newFakeRunner()
	runner.respond(brewList, ExitCommandNotFound, "brew: command not found")
	backend := NewPackageBackend(runner, "", testLogger())

	res, err := backend.Probe(context.Background(), brewUnit("git"), nil)
	if err != nil {
		t.Fatalf("Expected missing manager to mean absent, got: %v", err)
	}
	if res.Present {
		t.Error("Expected git absent")
	}

	_, _ = backend.Probe(context.Background(), brewUnit("fzf"), nil)
	if n := runner.count(brewList); n != 2 {
		t.Errorf("Expected missing manager not to be cached, got %d listings", n)
	}
}

func TestPackageBackend_ListingFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("dpkg-query -W -f=${Package}\t${Version}\t${db:Status-Abbrev}\n", 2,
		"dpkg-query: error: unable to access the dpkg database\n")
	backend := NewPackageBackend(runner, "apt", testLogger())

	_, err := backend.Probe(context.Background(), engine.Unit{ID: "git", Kind: engine.KindSystemPackage}, nil)
	if err == nil || !strings.Contains(err.Error(), "status 2") {
		t.Fatalf("Expected listing failure, got: %v", err)
	}
}

func TestPackageBackend_Commands(t *testing.T) {
	tests := []struct {
		name       string
		unit       engine.Unit
		action     engine.Action
		want       string
		privileged bool
	}{
		{
			name:       "apt install",
			unit:       engine.Unit{ID: "ripgrep", Kind: engine.KindSystemPackage},
			action:     engine.ActionInstall,
			want:       "apt-get install -y --no-install-recommends ripgrep",
			privileged: true,
		},
		{
			name:       "apt upgrade",
			unit:       engine.Unit{ID: "git", Kind: engine.KindSystemPackage},
			action:     engine.ActionUpgrade,
			want:       "apt-get install -y --only-upgrade git",
			privileged: true,
		},
		{
			name:   "cask",
			unit:   engine.Unit{ID: "ghostty", Kind: engine.KindCask},
			action: engine.ActionInstall,
			want:   "brew install --cask ghostty",
		},
		{
			name:       "snap classic",
			unit:       engine.Unit{ID: "nvim", Kind: engine.KindSnap, Args: []string{"--classic"}},
			action:     engine.ActionInstall,
			want:       "snap install --classic nvim",
			privileged: true,
		},
		{
			name:       "snap refresh",
			unit:       engine.Unit{ID: "nvim", Kind: engine.KindSnap},
			action:     engine.ActionUpgrade,
			want:       "snap refresh nvim",
			privileged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			backend := NewPackageBackend(runner, "apt", testLogger())

			if _, err := backend.Execute(context.Background(), tt.unit, tt.action, nil); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			cmd := runner.last()
			if commandKey(cmd) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, commandKey(cmd))
			}
			if cmd.Privileged != tt.privileged {
				t.Errorf("Expected privileged=%v", tt.privileged)
			}
		})
	}
}

func TestPackageBackend_ExitCodePassedThrough(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("brew install nosuchformula", 1, "Error: No available formula")
	backend := NewPackageBackend(runner, "brew", testLogger())

	res, err := backend.Execute(context.Background(), engine.Unit{ID: "nosuchformula", Kind: engine.KindSystemPackage}, engine.ActionInstall, nil)
	if err != nil {
		t.Fatalf("Expected exit status in result, got error: %v", err)
	}
	if res.ExitCode != 1 || !strings.Contains(res.Output, "No available formula") {
		t.Errorf("Expected failed exit with output, got %+v", res)
	}
}

func TestPackageBackend_UnknownManager(t *testing.T) {
	backend := NewPackageBackend(newFakeRunner(), "", testLogger())
	unit := engine.Unit{ID: "htop", Kind: engine.KindSystemPackage, Manager: "pacman"}

	if _, err := backend.Probe(context.Background(), unit, nil); err == nil {
		t.Error("Expected probe error for unknown manager")
	}
	if _, err := backend.Execute(context.Background(), unit, engine.ActionInstall, nil); err == nil {
		t.Error("Expected execute error for unknown manager")
	}
	if _, err := backend.Probe(context.Background(), engine.Unit{ID: "htop", Kind: engine.KindSystemPackage}, nil); err == nil {
		t.Error("Expected error when no manager is configured")
	}
}

func TestPackageBackend_DetectOverride(t *testing.T) {
	runner := newFakeRunner()
	runner.paths["rg"] = "/opt/homebrew/bin/rg"
	runner.respond("/opt/homebrew/bin/rg --version", 0, "ripgrep 14.1.0\n")
	backend := NewPackageBackend(runner, "brew", testLogger())

	unit := engine.Unit{
		ID:     "ripgrep",
		Kind:   engine.KindSystemPackage,
		Detect: engine.DetectSpec{Command: "rg", VersionArgs: []string{"--version"}},
	}
	res, err := backend.Probe(context.Background(), unit, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Present || res.Version != "ripgrep 14.1.0" {
		t.Errorf("Expected present with version line, got %+v", res)
	}
	if runner.count(brewList) != 0 {
		t.Error("Expected listing skipped when detection is overridden")
	}
}

func TestParsers_SystemManagers(t *testing.T) {
	dpkg, _ := parseDpkgQuery("git\t1:2.43.0-1ubuntu7\tii \nvim\t2:9.1\trc \nfzf\t0.44.1-1\thi \n")
	if dpkg["git"] != "1:2.43.0-1ubuntu7" || dpkg["fzf"] != "0.44.1-1" {
		t.Errorf("Unexpected dpkg listing: %v", dpkg)
	}
	if _, ok := dpkg["vim"]; ok {
		t.Error("Expected removed package excluded")
	}

	apt, _ := parseAptUpgradable("WARNING: apt does not have a stable CLI interface.\n\nListing...\ngit/noble-updates 1:2.43.0-1ubuntu7.2 amd64 [upgradable from: 1:2.43.0-1ubuntu7.1]\n")
	if apt["git"] != "1:2.43.0-1ubuntu7.2" || len(apt) != 1 {
		t.Errorf("Unexpected apt upgradable: %v", apt)
	}

	snaps, _ := parseTable("Name    Version   Rev    Tracking       Publisher   Notes\ncore22  20240111  1122   latest/stable  canonical✓  base\nnvim    v0.10.0   3296   latest/stable  neovim-snap classic\n")
	if snaps["nvim"] != "v0.10.0" || len(snaps) != 2 {
		t.Errorf("Unexpected snap list: %v", snaps)
	}

	upToDate, _ := parseTable("All snaps up to date.\n")
	if len(upToDate) != 0 {
		t.Errorf("Expected no refreshes, got %v", upToDate)
	}

	outdated, _ := parseNames("homebrew/cask/ghostty\nlazygit\n")
	if _, ok := outdated["ghostty"]; !ok || len(outdated) != 2 {
		t.Errorf("Unexpected outdated names: %v", outdated)
	}
}

func TestDefaultSystemManager(t *testing.T) {
	tests := []struct {
		facts *engine.Facts
		want  string
	}{
		{&engine.Facts{OS: "darwin"}, "brew"},
		{&engine.Facts{OS: "linux", Distro: "ubuntu"}, "apt"},
		{&engine.Facts{OS: "linux", Distro: "arch"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := DefaultSystemManager(tt.facts); got != tt.want {
			t.Errorf("DefaultSystemManager(%+v) = %q, want %q", tt.facts, got, tt.want)
		}
	}
}
