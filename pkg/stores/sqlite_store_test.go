package stores

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// setupTestStore creates a migrated store in a temporary directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testReport(id string, started time.Time) *engine.RunReport {
	report := &engine.RunReport{
		RunID:       id,
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
		Results: []engine.UnitResult{
			{
				Unit:      engine.Unit{ID: "git", Kind: engine.KindSystemPackage},
				Stage:     0,
				Detection: engine.Detection{Presence: engine.PresenceCurrent, Version: "2.43.0"},
				Outcome:   engine.Outcome{Kind: engine.OutcomeAlreadyPresent, Duration: 20 * time.Millisecond},
			},
			{
				Unit:    engine.Unit{ID: "lazygit", Kind: engine.KindSystemPackage, DependsOn: []string{"git"}},
				Stage:   1,
				Outcome: engine.Outcome{Kind: engine.OutcomeFailed, Reason: "exit status 100", Output: strings.Repeat("E: Unable to locate package lazygit\n", 50)},
			},
		},
		Counts: engine.Counts{AlreadyPresent: 1, Failed: 1},
	}
	return report
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "unit_outcomes"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("expected repeated migration to succeed, got: %v", err)
	}
}

func TestRecordRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	report := testReport("0b4a5c1e-7f5e-4f61-9a8e-2d7c4b1f0a11", started)

	if err := store.RecordRun(ctx, "ubuntu", report); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	run, err := store.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Platform != "ubuntu" || run.Status != RunStatusFailed {
		t.Errorf("unexpected run: %+v", run)
	}
	if !run.StartedAt.Equal(started) || run.Duration() != 3*time.Second {
		t.Errorf("expected start %v and 3s duration, got %v and %v", started, run.StartedAt, run.Duration())
	}
	if run.Counts != report.Counts {
		t.Errorf("expected counts %+v, got %+v", report.Counts, run.Counts)
	}

	outcomes, err := store.ListUnitOutcomes(ctx, report.RunID)
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].UnitID != "git" || outcomes[0].Version != "2.43.0" || outcomes[0].Output != "" {
		t.Errorf("unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[0].Duration != 20*time.Millisecond {
		t.Errorf("expected duration to round-trip, got %v", outcomes[0].Duration)
	}
	failed := outcomes[1]
	if failed.Outcome != engine.OutcomeFailed || failed.Stage != 1 || failed.Output != report.Results[1].Outcome.Output {
		t.Errorf("unexpected failed outcome: %+v", failed)
	}

	// Captured output is stored compressed.
	var stored int
	if err := store.db.QueryRowContext(ctx,
		"SELECT length(output) FROM unit_outcomes WHERE unit_id = 'lazygit'").Scan(&stored); err != nil {
		t.Fatalf("failed to read output length: %v", err)
	}
	if stored >= len(failed.Output) {
		t.Errorf("expected compressed output smaller than %d bytes, got %d", len(failed.Output), stored)
	}

	if err := store.RecordRun(ctx, "ubuntu", report); err == nil {
		t.Error("expected duplicate run ID to fail")
	}
}

func TestReportRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := testReport("4d1c0e5e-1111-4222-8333-944455556666", time.Now().Truncate(time.Millisecond))
	report.Renders = []engine.RenderRecord{{Unit: "zshrc", Path: "/home/u/.zshrc", Result: "written"}}
	if err := store.RecordRun(ctx, "darwin", report); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	got, err := store.Report(ctx, "4d1c0e5e")
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if got.RunID != report.RunID || len(got.Results) != 2 || got.Counts != report.Counts {
		t.Errorf("unexpected report: %+v", got)
	}
	if len(got.Renders) != 1 || got.Renders[0].Path != "/home/u/.zshrc" {
		t.Errorf("expected render records to round-trip, got %+v", got.Renders)
	}
	res, _ := got.Result("lazygit")
	if res.Outcome.Reason != "exit status 100" {
		t.Errorf("expected failure reason, got %q", res.Outcome.Reason)
	}
}

func TestGetRun_Prefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"abc12345-0000", "abc19999-0000", "def00000-0000"} {
		if err := store.RecordRun(ctx, "ubuntu", testReport(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
	}

	tests := []struct {
		prefix string
		want   string
		err    string
	}{
		{"def", "def00000-0000", ""},
		{"abc12", "abc12345-0000", ""},
		{"abc19999-0000", "abc19999-0000", ""},
		{"abc1", "", "ambiguous"},
		{"zzz", "", "not found"},
		{"%", "", "not found"},
		{"", "", "not found"},
	}

	for _, tt := range tests {
		run, err := store.GetRun(ctx, tt.prefix)
		if tt.err != "" {
			if err == nil || !strings.Contains(err.Error(), tt.err) {
				t.Errorf("GetRun(%q): expected error containing %q, got: %v", tt.prefix, tt.err, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("GetRun(%q): unexpected error: %v", tt.prefix, err)
			continue
		}
		if run.ID != tt.want {
			t.Errorf("GetRun(%q) = %s, want %s", tt.prefix, run.ID, tt.want)
		}
	}

	if _, err := store.GetRun(ctx, "zzz"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got: %v", err)
	}
}

func TestListRunsAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		report := testReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := store.RecordRun(ctx, "ubuntu", report); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-4" || runs[1].ID != "run-3" {
		t.Fatalf("expected newest first, got %v", runIDs(runs))
	}

	history, err := store.UnitHistory(ctx, "git", 3)
	if err != nil {
		t.Fatalf("failed to get unit history: %v", err)
	}
	if len(history) != 3 || history[0].RunID != "run-4" {
		t.Errorf("expected 3 newest git outcomes, got %d", len(history))
	}

	deleted, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 runs pruned, got %d", deleted)
	}

	runs, _ = store.ListRuns(ctx, 10, 0)
	if len(runs) != 2 || runs[1].ID != "run-3" {
		t.Errorf("expected run-4 and run-3 to remain, got %v", runIDs(runs))
	}

	var orphans int
	if err := store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM unit_outcomes WHERE run_id NOT IN (SELECT id FROM runs)").Scan(&orphans); err != nil {
		t.Fatalf("failed to count orphans: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected no orphaned outcomes, got %d", orphans)
	}

	if n, _ := store.Prune(ctx, 0); n != 0 {
		t.Errorf("expected keep=0 to prune nothing, got %d", n)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		report engine.RunReport
		want   RunStatus
	}{
		{engine.RunReport{}, RunStatusSucceeded},
		{engine.RunReport{Counts: engine.Counts{Failed: 1}}, RunStatusFailed},
		{engine.RunReport{Cancelled: true, Counts: engine.Counts{Failed: 1}}, RunStatusCancelled},
	}
	for _, tt := range tests {
		if got := StatusOf(&tt.report); got != tt.want {
			t.Errorf("StatusOf(%+v) = %s, want %s", tt.report.Counts, got, tt.want)
		}
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
