package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// MaxOutputLines caps how much captured output is shown per failed unit;
// the tail is kept because installers print the cause last.
const MaxOutputLines = 40

var outcomeLabels = map[engine.OutcomeKind]string{
	engine.OutcomeInstalled:      "installed",
	engine.OutcomeAlreadyPresent: "already present",
	engine.OutcomeUpgraded:       "upgraded",
	engine.OutcomeFailed:         "failed",
	engine.OutcomeSkipped:        "skipped",
}

// Summarize formats a run report as plain text.
func Summarize(report *engine.RunReport) string {
	return plain.Summarize(report)
}

// Tally formats aggregate counts, e.g. "2 installed, 5 already present, ...".
func Tally(c engine.Counts) string {
	return fmt.Sprintf("%d installed, %d already present, %d upgraded, %d failed, %d skipped",
		c.Installed, c.AlreadyPresent, c.Upgraded, c.Failed, c.Skipped)
}

// JSON encodes a run report for machine consumption.
func JSON(report *engine.RunReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// Summarize formats a run report: one line per unit in execution order, then
// renders, warnings, failure output and the tally.
func (f *Formatter) Summarize(report *engine.RunReport) string {
	var b strings.Builder
	s := f.styles

	title := "converge run"
	if report.RunID != "" {
		title += " " + shortID(report.RunID)
	}
	var flags []string
	if report.DryRun {
		flags = append(flags, "dry run")
	}
	if report.Cancelled {
		flags = append(flags, "cancelled")
	}
	if len(flags) > 0 {
		title += " (" + strings.Join(flags, ", ") + ")"
	}
	b.WriteString(s.header.Render(title))
	if d := report.Duration(); d > 0 {
		b.WriteString(s.dim.Render(" in " + d.Round(10*time.Millisecond).String()))
	}
	b.WriteString("\n\n")

	idWidth, labelWidth := 0, 0
	for _, res := range report.Results {
		idWidth = max(idWidth, len(res.Unit.ID))
		labelWidth = max(labelWidth, len(outcomeLabels[res.Outcome.Kind]))
	}

	for _, res := range report.Results {
		label := fmt.Sprintf("%-*s", labelWidth, outcomeLabels[res.Outcome.Kind])
		line := fmt.Sprintf("  %s  %-*s", s.outcome(res.Outcome.Kind).Render(label), idWidth, res.Unit.ID)
		if detail := unitDetail(res); detail != "" {
			line += "  " + s.dim.Render(detail)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}

	if len(report.Renders) > 0 {
		b.WriteString("\n" + s.section.Render("Generated files") + "\n")
		for _, r := range report.Renders {
			line := fmt.Sprintf("  %s  %s  %s", r.Unit, strings.ReplaceAll(r.Result, "_", " "), r.Path)
			if r.Backup != "" {
				line += s.dim.Render("  backup " + r.Backup)
			}
			b.WriteString(line + "\n")
		}
	}

	if warnings := report.Warnings(); len(warnings) > 0 {
		b.WriteString("\n" + s.section.Render("Warnings") + "\n")
		for _, w := range warnings {
			b.WriteString("  " + s.warning.Render(w) + "\n")
		}
	}

	if failures := report.Failures(); len(failures) > 0 {
		b.WriteString("\n" + s.section.Render("Failures") + "\n")
		for _, res := range failures {
			b.WriteString(failureDetail(res, s.failed.Render(res.Unit.ID)))
		}
	}

	b.WriteString("\n" + Tally(report.Counts) + "\n")
	return b.String()
}

// unitDetail is the trailing text of a unit line: the reason for failed and
// skipped units, otherwise the version and label.
func unitDetail(res engine.UnitResult) string {
	switch res.Outcome.Kind {
	case engine.OutcomeFailed, engine.OutcomeSkipped:
		return res.Outcome.Reason
	}
	var parts []string
	if res.Detection.Version != "" {
		parts = append(parts, res.Detection.Version)
	}
	if res.Unit.Label != "" {
		parts = append(parts, res.Unit.Label)
	}
	return strings.Join(parts, "  ")
}

func failureDetail(res engine.UnitResult, id string) string {
	var b strings.Builder
	header := "  " + id
	if res.Outcome.Error != nil && res.Outcome.Error.Operation != "" {
		header += " (" + res.Outcome.Error.Operation + ")"
	}
	header += ": " + res.Outcome.Reason
	b.WriteString(header + "\n")

	output := strings.TrimRight(res.Outcome.Output, "\n")
	if output == "" {
		return b.String()
	}

	lines := strings.Split(output, "\n")
	if omitted := len(lines) - MaxOutputLines; omitted > 0 {
		fmt.Fprintf(&b, "    | ... %d earlier lines omitted\n", omitted)
		lines = lines[omitted:]
	}
	for _, line := range lines {
		b.WriteString(strings.TrimRight("    | "+line, " \r") + "\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
