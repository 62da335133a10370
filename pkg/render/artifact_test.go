package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func shellUnits() []engine.Unit {
	return []engine.Unit{
		{
			ID:   "homebrew",
			Kind: engine.KindScript,
			Shell: engine.ShellFragment{
				Init: []string{`eval "$(/opt/homebrew/bin/brew shellenv)"`},
			},
		},
		{
			ID:   "fzf",
			Kind: engine.KindSystemPackage,
			Shell: engine.ShellFragment{
				Env: map[string]string{
					"FZF_DEFAULT_OPTS":    "--height 40%",
					"FZF_DEFAULT_COMMAND": "rg --files --hidden",
				},
			},
		},
		{
			ID:    "lazygit",
			Label: "lazygit (git TUI)",
			Kind:  engine.KindSystemPackage,
			Shell: engine.ShellFragment{
				Aliases: map[string]string{"lg": "lazygit", "lgs": "lazygit status"},
			},
		},
		{
			ID:   "uv",
			Kind: engine.KindScript,
			Shell: engine.ShellFragment{
				Path: []string{"~/.local/bin"},
				Env:  map[string]string{"UV_TOOL_DIR": "$HOME/.local/share/uv/tools"},
			},
		},
		{ID: "git", Kind: engine.KindSystemPackage},
	}
}

func TestNewArtifact(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	a, err := NewArtifact("shell-config", "~/.config/converge/env.zsh", "zsh", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if a.Path != "/home/tester/.config/converge/env.zsh" {
		t.Errorf("Expected expanded path, got %s", a.Path)
	}

	_, err = NewArtifact("shell-config", "/tmp/x", "fish", nil)
	if !engine.IsRender(err) {
		t.Errorf("Expected render error for unknown format, got: %v", err)
	}

	if _, err := ArtifactFor(engine.Unit{ID: "rc", Kind: engine.KindGeneratedFile}); err == nil {
		t.Error("Expected error for unit without artifact")
	}
}

func TestGenerators_Deterministic(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			a, err := NewArtifact("rc", "/tmp/rc", format, nil)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			first := a.Content(engine.NewCapabilitySet(shellUnits()...))
			for i := 0; i < 20; i++ {
				again := a.Content(engine.NewCapabilitySet(shellUnits()...))
				if !bytes.Equal(first, again) {
					t.Fatalf("Expected byte-identical output, got:\n%s\nvs\n%s", first, again)
				}
			}
		})
	}
}

func TestGenerateZsh(t *testing.T) {
	content := string(generateZsh(DefaultHeader, engine.NewCapabilitySet(shellUnits()...)))

	for _, want := range []string{
		"# Generated by converge.",
		"typeset -U path PATH",
		`eval "$(/opt/homebrew/bin/brew shellenv)"`,
		`export FZF_DEFAULT_COMMAND="rg --files --hidden"`,
		"# lazygit (git TUI)\nalias lg='lazygit'\nalias lgs='lazygit status'\n",
		`path=("$HOME/.local/bin" $path)`,
		`export UV_TOOL_DIR="$HOME/.local/share/uv/tools"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected zsh output to contain %q, got:\n%s", want, content)
		}
	}

	if strings.Index(content, "FZF_DEFAULT_COMMAND") > strings.Index(content, "FZF_DEFAULT_OPTS") {
		t.Error("Expected env keys sorted")
	}
	if strings.Contains(content, "# git\n") {
		t.Error("Expected units without fragments to be omitted")
	}
}

func TestGenerateBash(t *testing.T) {
	content := string(generateBash([]string{"bash header"}, engine.NewCapabilitySet(shellUnits()...)))

	want := `case ":$PATH:" in *":$HOME/.local/bin:"*) ;; *) export PATH="$HOME/.local/bin":"$PATH" ;; esac`
	if !strings.Contains(content, want) {
		t.Errorf("Expected guarded PATH entry, got:\n%s", content)
	}
	if !strings.HasPrefix(content, "# bash header\n") {
		t.Errorf("Expected custom header, got:\n%s", content)
	}
	if strings.Contains(content, "typeset") {
		t.Error("Expected no zsh builtins in bash output")
	}
}

func TestGenerateEnv(t *testing.T) {
	units := shellUnits()
	units = append(units, engine.Unit{
		ID:    "fzf-override",
		Kind:  engine.KindSystemPackage,
		Shell: engine.ShellFragment{Env: map[string]string{"FZF_DEFAULT_OPTS": "--reverse"}},
	})
	content := string(generateEnv(nil, engine.NewCapabilitySet(units...)))

	if !strings.Contains(content, "# units: fzf, uv, fzf-override\n") {
		t.Errorf("Expected contributor list, got:\n%s", content)
	}
	if !strings.Contains(content, `FZF_DEFAULT_OPTS="--reverse"`) {
		t.Errorf("Expected later unit to win, got:\n%s", content)
	}
	if strings.Contains(content, "alias") || strings.Contains(content, "eval") {
		t.Errorf("Expected only environment variables, got:\n%s", content)
	}

	empty := string(generateEnv([]string{"h"}, engine.NewCapabilitySet()))
	if empty != "# h\n" {
		t.Errorf("Expected header only, got %q", empty)
	}
}

func TestQuoting(t *testing.T) {
	if got := singleQuote("it's"); got != `'it'\''s'` {
		t.Errorf("Unexpected single quoting: %s", got)
	}
	if got := doubleQuote("a \"b\" `c` \\d $HOME"); got != "\"a \\\"b\\\" \\`c\\` \\\\d $HOME\"" {
		t.Errorf("Unexpected double quoting: %s", got)
	}
}
