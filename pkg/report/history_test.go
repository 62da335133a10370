package report

import (
	"strings"
	"testing"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/stores"
)

func TestHistory(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	runs := []*stores.Run{
		{
			ID:          "9a8b7c6d-0000",
			Platform:    "ubuntu",
			Status:      stores.RunStatusFailed,
			StartedAt:   now.Add(-150 * time.Minute),
			CompletedAt: now.Add(-150*time.Minute + 42*time.Second),
			Counts:      engine.Counts{Installed: 2, AlreadyPresent: 30, Failed: 1},
		},
		{
			ID:          "1f2e3d4c-0000",
			Platform:    "darwin",
			Status:      stores.RunStatusSucceeded,
			DryRun:      true,
			StartedAt:   now.Add(-72 * time.Hour),
			CompletedAt: now.Add(-72*time.Hour + 3*time.Second),
		},
	}

	out := plain.History(runs, now)
	want := "" +
		"  9a8b7c6d  2 hours ago  ubuntu  failed               2 installed, 30 present, 1 failed in 42s\n" +
		"  1f2e3d4c  3 days ago   darwin  succeeded (dry run)  no units in 3s\n"
	if out != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, out)
	}

	if got := plain.History(nil, now); got != "no runs recorded\n" {
		t.Errorf("Expected empty message, got: %q", got)
	}
}

func TestUnitTimeline(t *testing.T) {
	outcomes := []*stores.UnitOutcome{
		{RunID: "9a8b7c6d-0000", UnitID: "lazygit", Outcome: engine.OutcomeFailed, Reason: "exit status 100"},
		{RunID: "1f2e3d4c-0000", UnitID: "lazygit", Outcome: engine.OutcomeInstalled, Version: "0.40.2"},
	}

	out := plain.UnitTimeline("lazygit", outcomes)
	for _, want := range []string{
		"lazygit\n",
		"  9a8b7c6d  failed     exit status 100\n",
		"  1f2e3d4c  installed  0.40.2\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected timeline to contain %q, got:\n%s", want, out)
		}
	}

	if out := plain.UnitTimeline("fzf", nil); !strings.Contains(out, "no recorded outcomes") {
		t.Errorf("Expected empty timeline message, got:\n%s", out)
	}
}
