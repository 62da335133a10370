package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	return path
}

func TestDefaultSettings(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	s := DefaultSettings()
	if s.StateDir != "/tmp/state/converge" {
		t.Errorf("Expected XDG state dir, got %s", s.StateDir)
	}
	if !s.History.Enabled || !s.Policy.Enabled {
		t.Error("Expected history and policy enabled by default")
	}
	if s.LockPath() != "/tmp/state/converge/converge.lock" {
		t.Errorf("Unexpected lock path: %s", s.LockPath())
	}
}

func TestLoadSettings_File(t *testing.T) {
	stateDir := t.TempDir()
	path := writeSettings(t, `
catalogs:
  - ~/dotfiles/catalog
platform: ubuntu
state_dir: `+stateDir+`
history:
  enabled: true
policy:
  paths: [/etc/converge/policies]
watch:
  debounce: 5s
telemetry:
  service_name: converge
  logging:
    level: warn
    format: json
`)
	t.Setenv("HOME", "/home/tester")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(s.Catalogs) != 1 || s.Catalogs[0] != "/home/tester/dotfiles/catalog" {
		t.Errorf("Expected expanded catalog path, got %v", s.Catalogs)
	}
	if s.Platform != "ubuntu" {
		t.Errorf("Expected ubuntu platform, got %s", s.Platform)
	}
	if s.History.Path != filepath.Join(stateDir, "history.db") {
		t.Errorf("Expected history path under state dir, got %s", s.History.Path)
	}
	if s.Watch.Debounce != 5*time.Second {
		t.Errorf("Expected 5s debounce, got %s", s.Watch.Debounce)
	}
	if s.Telemetry.Logging.Level != "warn" || s.Telemetry.Logging.Format != "json" {
		t.Errorf("Expected warn/json logging, got %+v", s.Telemetry.Logging)
	}
	if s.Telemetry.Logging.Output != "stderr" {
		t.Errorf("Expected defaults kept for unset fields, got %q", s.Telemetry.Logging.Output)
	}
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	path := writeSettings(t, "platform: darwin\n")
	t.Setenv("CONVERGE_PLATFORM", "ubuntu")
	t.Setenv("CONVERGE_LOG_LEVEL", "DEBUG")
	t.Setenv("CONVERGE_HISTORY", "false")
	t.Setenv("CONVERGE_METRICS_TEXTFILE", "/var/lib/node_exporter/converge.prom")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if s.Platform != "ubuntu" {
		t.Errorf("Expected env to override file, got %s", s.Platform)
	}
	if s.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", s.Telemetry.Logging.Level)
	}
	if s.History.Enabled {
		t.Error("Expected history disabled")
	}
	if !s.Telemetry.Metrics.Enabled || s.Telemetry.Metrics.TextfilePath != "/var/lib/node_exporter/converge.prom" {
		t.Errorf("Expected metrics textfile enabled, got %+v", s.Telemetry.Metrics)
	}
}

func TestLoadSettings_DotEnv(t *testing.T) {
	path := writeSettings(t, "")
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(dotenv, []byte("CONVERGE_PLATFORM=ubuntu\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CONVERGE_PLATFORM") })

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Platform != "ubuntu" {
		t.Errorf("Expected platform from .env, got %q", s.Platform)
	}
}

func TestLoadSettings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "unknown key", content: "catalog: [x]\n"},
		{name: "bad log level", content: "telemetry:\n  logging:\n    level: loud\n"},
		{name: "bad platform", content: "platform: Ubuntu 24\n"},
		{name: "metrics without path", content: "telemetry:\n  metrics:\n    enabled: true\n"},
		{name: "bad env bool", env: map[string]string{"CONVERGE_HISTORY": "sometimes"}},
		{name: "bad env duration", env: map[string]string{"CONVERGE_WATCH_DEBOUNCE": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadSettings(writeSettings(t, tt.content))
			if !engine.IsConfiguration(err) {
				t.Fatalf("Expected configuration error, got: %v", err)
			}
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml")); !engine.IsConfiguration(err) {
		t.Fatalf("Expected configuration error for explicit missing file, got: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	if _, err := LoadSettings(""); err != nil {
		t.Fatalf("Expected defaults when the default file is absent, got: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b:c ,,")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
}
