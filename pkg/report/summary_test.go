package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

func sampleReport() *engine.RunReport {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &engine.RunReport{
		RunID:       "5f0c7a7e-5d8b-4c7e-9a58-0a4d2f3c9b11",
		StartedAt:   start,
		CompletedAt: start.Add(3200 * time.Millisecond),
		Results: []engine.UnitResult{
			{
				Unit:      engine.Unit{ID: "git", Label: "Git"},
				Detection: engine.Detection{Presence: engine.PresenceCurrent, Version: "2.43.0"},
				Outcome:   engine.Outcome{Kind: engine.OutcomeAlreadyPresent},
			},
			{
				Unit:    engine.Unit{ID: "ripgrep"},
				Outcome: engine.Outcome{Kind: engine.OutcomeInstalled},
			},
			{
				Unit: engine.Unit{ID: "neovim"},
				Outcome: engine.Outcome{
					Kind:   engine.OutcomeFailed,
					Reason: "exit status 100",
					Output: "Reading package lists...\nE: Could not get lock /var/lib/dpkg/lock-frontend\n",
					Error:  engine.NewInstallError("exit status 100", nil).WithOperation("install"),
				},
				Detection: engine.Detection{Warnings: []string{"dpkg database locked"}},
			},
			{
				Unit:    engine.Unit{ID: "lazyvim"},
				Outcome: engine.Outcome{Kind: engine.OutcomeSkipped, Reason: "dependency unit failed: neovim"},
			},
		},
		Counts:  engine.Counts{Installed: 1, AlreadyPresent: 1, Failed: 1, Skipped: 1},
		Renders: []engine.RenderRecord{{Unit: "shell-config", Path: "/home/tester/.config/converge/env.zsh", Result: "backed_up_and_written", Backup: "/home/tester/.config/converge/env.zsh.bak.0123456789ab"}},
	}
	return r
}

func TestSummarize(t *testing.T) {
	out := Summarize(sampleReport())

	for _, want := range []string{
		"converge run 5f0c7a7e in 3.2s\n",
		"  already present  git      2.43.0  Git\n",
		"  installed        ripgrep\n",
		"  failed           neovim   exit status 100\n",
		"  skipped          lazyvim  dependency unit failed: neovim\n",
		"Generated files\n  shell-config  backed up and written  /home/tester/.config/converge/env.zsh  backup ",
		"Warnings\n  neovim: dpkg database locked\n",
		"Failures\n  neovim (install): exit status 100\n    | Reading package lists...\n    | E: Could not get lock",
		"\n1 installed, 1 already present, 0 upgraded, 1 failed, 1 skipped\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no escape codes in plain summary")
	}
}

func TestSummarize_EveryUnitOnce(t *testing.T) {
	r := sampleReport()
	out := Summarize(r)
	for _, res := range r.Results {
		n := strings.Count(out, "  "+res.Unit.ID+" ") + strings.Count(out, "  "+res.Unit.ID+"\n")
		if res.Outcome.Kind == engine.OutcomeFailed {
			// The failure section names the unit again.
			n--
		}
		if n != 1 {
			t.Errorf("Expected %s listed once in the table, got %d", res.Unit.ID, n)
		}
	}
}

func TestSummarize_CancelledDryRun(t *testing.T) {
	r := &engine.RunReport{RunID: "abc", Cancelled: true, DryRun: true}
	out := Summarize(r)
	if !strings.HasPrefix(out, "converge run abc (dry run, cancelled)\n") {
		t.Errorf("Unexpected title: %q", out)
	}
}

func TestFailureDetail_TruncatesOutput(t *testing.T) {
	var lines []string
	for i := 1; i <= MaxOutputLines+5; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	res := engine.UnitResult{
		Unit:    engine.Unit{ID: "x"},
		Outcome: engine.Outcome{Kind: engine.OutcomeFailed, Reason: "boom", Output: strings.Join(lines, "\n")},
	}

	out := failureDetail(res, "x")
	if !strings.Contains(out, "... 5 earlier lines omitted") {
		t.Errorf("Expected omission note, got:\n%s", out)
	}
	if strings.Contains(out, "| line 5\n") || !strings.Contains(out, "| line 6\n") {
		t.Errorf("Expected the tail kept, got:\n%s", out)
	}
}

func TestJSON(t *testing.T) {
	data, err := JSON(sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var decoded engine.RunReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if len(decoded.Results) != 4 || decoded.Counts.Failed != 1 {
		t.Errorf("Unexpected decoded report: %+v", decoded.Counts)
	}
	if !bytes.Contains(data, []byte(`"kind": "already_present"`)) {
		t.Errorf("Expected outcome kinds as strings, got:\n%s", data)
	}
}

func TestFormatter_Color(t *testing.T) {
	var buf bytes.Buffer
	plainOut := NewFormatter(&buf, false).Summarize(sampleReport())
	if plainOut != Summarize(sampleReport()) {
		t.Error("Expected colourless formatter to match Summarize")
	}
}

func TestTally(t *testing.T) {
	got := Tally(engine.Counts{Installed: 2, AlreadyPresent: 7, Upgraded: 1})
	if got != "2 installed, 7 already present, 1 upgraded, 0 failed, 0 skipped" {
		t.Errorf("Unexpected tally: %s", got)
	}
}
