package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

const testCatalog = `units:
  - id: git
    kind: system-package
    manager: apt
    rationale: Version control.
  - id: lazygit
    kind: system-package
    manager: apt
    rationale: Git TUI.
    depends_on: [git]
`

const insecureCatalog = `units:
  - id: yq
    kind: binary-download
    source: http://example.com/yq
    destination: ~/.local/bin/yq
    rationale: YAML processor.
`

// runCommand executes the root command hermetically and returns stdout.
func runCommand(t *testing.T, catalog string, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("CONVERGE_HISTORY", "false")
	t.Setenv("CONVERGE_LOG_LEVEL", "error")

	catalogPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(catalog), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	var out, errOut bytes.Buffer
	root := newRootCommand("test", "none", "today")
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--catalog", catalogPath, "--platform", "ubuntu"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitFatal},
		{"configuration", engine.NewConfigurationError("cycle", nil), ExitFatal},
		{"install", &ExitError{Code: ExitInstallFailed}, ExitInstallFailed},
		{"wrapped render", errors.Join(errors.New("ctx"), &ExitError{Code: ExitRenderFailed}), ExitRenderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got: %d", tt.want, got)
			}
		})
	}
}

func TestReportExit(t *testing.T) {
	renderFailure := engine.UnitResult{
		Unit: engine.Unit{ID: "zshrc", Kind: engine.KindGeneratedFile},
		Outcome: engine.Outcome{
			Kind:  engine.OutcomeFailed,
			Error: engine.NewRenderError("write failed", nil),
		},
	}
	installFailure := engine.UnitResult{
		Unit: engine.Unit{ID: "git", Kind: engine.KindSystemPackage},
		Outcome: engine.Outcome{
			Kind:  engine.OutcomeFailed,
			Error: engine.NewInstallError("exit status 100", nil),
		},
	}

	tests := []struct {
		name    string
		results []engine.UnitResult
		want    int
	}{
		{"clean", nil, ExitOK},
		{"render only", []engine.UnitResult{renderFailure}, ExitRenderFailed},
		{"install", []engine.UnitResult{installFailure}, ExitInstallFailed},
		{"both", []engine.UnitResult{renderFailure, installFailure}, ExitInstallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &engine.RunReport{Results: tt.results, Counts: engine.Counts{Failed: len(tt.results)}}
			err := reportExit(report)
			if got := ExitCode(err); got != tt.want {
				t.Errorf("Expected exit code %d, got: %d (%v)", tt.want, got, err)
			}
			var exitErr *ExitError
			if err != nil && (!errors.As(err, &exitErr) || !exitErr.Reported) {
				t.Error("Expected run failures to be marked as reported")
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := runCommand(t, testCatalog, "validate")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "catalog ok: 2 units in 2 stages for ubuntu (1 files)") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}

func TestValidateCommand_PolicyViolation(t *testing.T) {
	_, err := runCommand(t, insecureCatalog, "validate")
	if !engine.IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got: %v", err)
	}
	if ExitCode(err) != ExitFatal {
		t.Errorf("Expected fatal exit code, got: %d", ExitCode(err))
	}
	if !strings.Contains(err.Error(), "yq") {
		t.Errorf("Expected violation to name the unit, got: %v", err)
	}
}

func TestPlanCommand(t *testing.T) {
	out, err := runCommand(t, testCatalog, "plan")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := "stage 0\n  git  system-package\nstage 1\n  lazygit  system-package  needs git\n\n2 units in 2 stages\n"
	if out != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, out)
	}

	out, err = runCommand(t, testCatalog, "plan", "--dot")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(out, "digraph Catalog {") || !strings.Contains(out, `"git"`) {
		t.Errorf("Expected DOT output, got:\n%s", out)
	}
}

func TestPlanCommand_Cycle(t *testing.T) {
	cyclic := `units:
  - id: a
    kind: system-package
    depends_on: [b]
  - id: b
    kind: system-package
    depends_on: [a]
`
	_, err := runCommand(t, cyclic, "plan")
	if !engine.IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got: %v", err)
	}
}
