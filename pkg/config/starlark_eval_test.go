package config

import (
	"context"
	"testing"
	"time"
)

func TestPredicateEvaluator_Evaluate(t *testing.T) {
	evaluator := NewPredicateEvaluator(time.Second)
	facts := map[string]any{
		"os":             "linux",
		"arch":           "amd64",
		"distro":         "ubuntu",
		"distro_version": "24.04",
		"hostname":       "workstation",
	}

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "equality", expr: `os == "linux"`, want: true},
		{name: "membership", expr: `arch in ["arm64", "amd64"]`, want: true},
		{name: "struct access", expr: `facts.distro == "debian"`, want: false},
		{name: "boolean logic", expr: `os == "linux" and not hostname.startswith("ci-")`, want: true},
		{name: "version helper", expr: `version_at_least(distro_version, "22.04")`, want: true},
		{name: "version helper newer", expr: `version_at_least(distro_version, "26.04")`, want: false},
		{name: "unparseable version", expr: `version_at_least("rolling", "1.0")`, want: false},
		{name: "truthy string", expr: `distro`, want: true},
		{name: "undefined name", expr: `kernel_flavour == "rt"`, wantErr: true},
		{name: "syntax error", expr: `os ==`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(context.Background(), tt.expr, facts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestPredicateEvaluator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPredicateEvaluator(time.Second).Evaluate(ctx, `[x for x in range(1000000)]`, nil)
	if err == nil {
		t.Fatal("Expected cancelled evaluation to fail")
	}
}

func TestToStarlarkValue_Unsupported(t *testing.T) {
	if _, err := toStarlarkValue(struct{}{}); err == nil {
		t.Error("Expected error for unsupported type")
	}
}
