package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/andrew-tomago/dotfiles/pkg/stores"
)

// History formats journaled runs, newest first, with start times relative
// to now.
func (f *Formatter) History(runs []*stores.Run, now time.Time) string {
	if len(runs) == 0 {
		return "no runs recorded\n"
	}
	s := f.styles

	type row struct {
		id, when, platform, status, detail string
		run                                *stores.Run
	}
	rows := make([]row, len(runs))
	var whenWidth, platformWidth, statusWidth int

	for i, run := range runs {
		status := string(run.Status)
		if run.DryRun {
			status += " (dry run)"
		}
		rows[i] = row{
			id:       shortID(run.ID),
			when:     humanize.RelTime(run.StartedAt, now, "ago", "from now"),
			platform: run.Platform,
			status:   status,
			detail:   fmt.Sprintf("%s in %s", compactTally(run), run.Duration().Round(time.Second)),
			run:      run,
		}
		whenWidth = max(whenWidth, len(rows[i].when))
		platformWidth = max(platformWidth, len(rows[i].platform))
		statusWidth = max(statusWidth, len(rows[i].status))
	}

	var b strings.Builder
	for _, r := range rows {
		status := fmt.Sprintf("%-*s", statusWidth, r.status)
		fmt.Fprintf(&b, "  %s  %-*s  %-*s  %s  %s\n",
			r.id,
			whenWidth, r.when,
			platformWidth, r.platform,
			f.runStatus(r.run.Status).Render(status),
			s.dim.Render(r.detail))
	}
	return b.String()
}

// UnitTimeline formats one unit's outcomes across runs, newest first.
func (f *Formatter) UnitTimeline(unitID string, outcomes []*stores.UnitOutcome) string {
	var b strings.Builder
	s := f.styles

	b.WriteString(s.header.Render(unitID))
	b.WriteByte('\n')
	if len(outcomes) == 0 {
		b.WriteString("  no recorded outcomes\n")
		return b.String()
	}

	labelWidth := 0
	for _, o := range outcomes {
		labelWidth = max(labelWidth, len(outcomeLabels[o.Outcome]))
	}
	for _, o := range outcomes {
		label := fmt.Sprintf("%-*s", labelWidth, outcomeLabels[o.Outcome])
		line := fmt.Sprintf("  %s  %s", shortID(o.RunID), s.outcome(o.Outcome).Render(label))
		var detail []string
		if o.Version != "" {
			detail = append(detail, o.Version)
		}
		if o.Reason != "" {
			detail = append(detail, o.Reason)
		}
		if len(detail) > 0 {
			line += "  " + s.dim.Render(strings.Join(detail, ": "))
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *Formatter) runStatus(status stores.RunStatus) lipgloss.Style {
	switch status {
	case stores.RunStatusSucceeded:
		return f.styles.ok
	case stores.RunStatusFailed:
		return f.styles.failed
	default:
		return f.styles.skipped
	}
}

// compactTally lists only the non-zero counts of a run.
func compactTally(run *stores.Run) string {
	c := run.Counts
	var parts []string
	for _, p := range []struct {
		n     int
		label string
	}{
		{c.Installed, "installed"},
		{c.Upgraded, "upgraded"},
		{c.AlreadyPresent, "present"},
		{c.Failed, "failed"},
		{c.Skipped, "skipped"},
	} {
		if p.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", p.n, p.label))
		}
	}
	if len(parts) == 0 {
		return "no units"
	}
	return strings.Join(parts, ", ")
}
