package backends

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		pattern string
		want    string
	}{
		{"first line", "git version 2.43.0\nmore", "", "git version 2.43.0"},
		{"capture group", "NVIM v0.9.5\nBuild type: Release", `NVIM v(\S+)`, "0.9.5"},
		{"whole match", "ripgrep 14.1.0 (rev e50df40a19)", `\d+\.\d+\.\d+`, "14.1.0"},
		{"no match", "unknown build", `v(\d+)`, ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVersion(tt.output, tt.pattern)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := ExtractVersion("x", "("); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestProber_DetectPath(t *testing.T) {
	app := filepath.Join(t.TempDir(), "Ghostty.app")
	if err := os.Mkdir(app, 0o755); err != nil {
		t.Fatalf("Failed to create app bundle: %v", err)
	}

	p := prober{runner: newFakeRunner()}

	res, err := p.probe(context.Background(), engine.Unit{ID: "ghostty", Detect: engine.DetectSpec{Path: app}}, "")
	if err != nil || !res.Present {
		t.Errorf("Expected present app bundle, got %+v, %v", res, err)
	}

	res, err = p.probe(context.Background(), engine.Unit{ID: "ghostty", Detect: engine.DetectSpec{Path: app + ".missing"}}, "")
	if err != nil || res.Present {
		t.Errorf("Expected missing app bundle absent, got %+v, %v", res, err)
	}
}

func TestProber_Version(t *testing.T) {
	runner := newFakeRunner()
	runner.paths["nvim"] = "/usr/bin/nvim"
	runner.respond("/usr/bin/nvim --version", 0, "NVIM v0.9.5\nBuild type: Release\n")
	p := prober{runner: runner}

	unit := engine.Unit{ID: "neovim", Detect: engine.DetectSpec{
		Command:        "nvim",
		VersionArgs:    []string{"--version"},
		VersionPattern: `NVIM v(\S+)`,
	}}
	res, err := p.probe(context.Background(), unit, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Version != "0.9.5" {
		t.Errorf("Expected version 0.9.5, got %q", res.Version)
	}

	runner.respond("/usr/bin/nvim --version", 1, "segfault")
	if _, err := p.probe(context.Background(), unit, ""); err == nil {
		t.Error("Expected error when version command fails")
	}
}

func TestProber_NoCommand(t *testing.T) {
	p := prober{runner: newFakeRunner()}
	if _, err := p.probe(context.Background(), engine.Unit{ID: "x"}, ""); err == nil {
		t.Error("Expected error without detection command")
	}
}
