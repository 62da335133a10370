package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func TestRunObserver_WritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "converge.prom")
	metrics, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "converge", TextfilePath: path})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var logs bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &logs)
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "converge", "test", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	obs := NewRunObserver(tracer, metrics, logger)
	ctx := context.Background()
	git := engine.Unit{ID: "git", Kind: engine.KindSystemPackage}
	fzf := engine.Unit{ID: "fzf", Kind: engine.KindSystemPackage}

	report := &engine.RunReport{RunID: "run-1", StartedAt: time.Now()}
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeRunStarted, RunID: "run-1"})
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeUnitStarted, RunID: "run-1", Unit: &git})
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeUnitCompleted, RunID: "run-1", Unit: &git, Result: &engine.UnitResult{
		Unit:    git,
		Outcome: engine.Outcome{Kind: engine.OutcomeInstalled, Duration: time.Second},
	}})
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeWarning, RunID: "run-1", Unit: &fzf, Message: "detection failed"})
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeUnitCompleted, RunID: "run-1", Unit: &fzf, Result: &engine.UnitResult{
		Unit:    fzf,
		Outcome: engine.Outcome{
			Kind:  engine.OutcomeFailed,
			Error: engine.NewInstallError("exit status 100", nil).WithCode(engine.ErrCodeExitStatus),
		},
	}})
	report.CompletedAt = time.Now()
	report.Counts.Failed = 1
	obs.Observe(ctx, engine.Event{Type: engine.EventTypeRunCompleted, RunID: "run-1", Report: report})

	if err := metrics.WriteTextfile(); err != nil {
		t.Fatalf("Expected no error writing textfile, got: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected textfile to exist, got: %v", err)
	}

	text := string(data)
	for _, want := range []string{
		`converge_unit_outcomes_total{kind="system-package",outcome="installed"} 1`,
		`converge_unit_outcomes_total{kind="system-package",outcome="failed"} 1`,
		`converge_runs_completed_total{status="failed"} 1`,
		`converge_errors_by_class_total{class="install",code="EXIT_STATUS"} 1`,
		`converge_warnings_total{kind="system-package"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected textfile to contain %q, got:\n%s", want, text)
		}
	}

	if !strings.Contains(logs.String(), "detection failed") {
		t.Errorf("Expected warning to be logged, got: %s", logs.String())
	}
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	m.RecordUnitOutcome("cask", "installed", time.Second)
	m.RecordRunCompleted("succeeded", time.Second, time.Now())
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if m.Registry() != nil {
		t.Error("Expected no registry when disabled")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	cfg.Metrics.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for metrics without textfile path")
	}

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid log format")
	}
}

func TestRunStatus(t *testing.T) {
	if got := RunStatus(&engine.RunReport{}); got != "succeeded" {
		t.Errorf("Expected succeeded, got %s", got)
	}
	if got := RunStatus(&engine.RunReport{Counts: engine.Counts{Failed: 1}}); got != "failed" {
		t.Errorf("Expected failed, got %s", got)
	}
	if got := RunStatus(&engine.RunReport{Cancelled: true, Counts: engine.Counts{Failed: 1}}); got != "cancelled" {
		t.Errorf("Expected cancelled, got %s", got)
	}
}
