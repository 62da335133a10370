package report

import (
	"fmt"
	"strings"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

var presenceLabels = map[engine.Presence]string{
	engine.PresenceCurrent: "current",
	engine.PresenceStale:   "stale",
	engine.PresenceAbsent:  "absent",
}

// Survey formats detection results: one line per unit plus a tally.
func (f *Formatter) Survey(results []engine.UnitResult) string {
	var b strings.Builder
	s := f.styles

	idWidth := 0
	for _, res := range results {
		idWidth = max(idWidth, len(res.Unit.ID))
	}

	counts := make(map[engine.Presence]int)
	for _, res := range results {
		p := res.Detection.Presence
		counts[p]++

		label := fmt.Sprintf("%-7s", presenceLabels[p])
		line := fmt.Sprintf("  %s  %-*s  %s", s.presence(p).Render(label), idWidth, res.Unit.ID, res.Unit.Kind)
		if res.Detection.Version != "" {
			line += "  " + s.dim.Render(res.Detection.Version)
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
		for _, w := range res.Detection.Warnings {
			b.WriteString("      " + s.warning.Render("warning: "+w) + "\n")
		}
	}

	fmt.Fprintf(&b, "\n%d current, %d stale, %d absent\n",
		counts[engine.PresenceCurrent], counts[engine.PresenceStale], counts[engine.PresenceAbsent])
	return b.String()
}

// Plan formats stages and their units in execution order.
func (f *Formatter) Plan(plan *engine.Plan) string {
	var b strings.Builder
	s := f.styles

	for _, stage := range plan.Stages {
		b.WriteString(s.header.Render(fmt.Sprintf("stage %d", stage.Index)) + "\n")
		for _, u := range stage.Units {
			line := fmt.Sprintf("  %s  %s", u.ID, s.dim.Render(string(u.Kind)))
			if len(u.DependsOn) > 0 {
				line += s.dim.Render("  needs " + strings.Join(u.DependsOn, ", "))
			}
			b.WriteString(line + "\n")
		}
	}
	fmt.Fprintf(&b, "\n%d units in %d stages\n", plan.Len(), len(plan.Stages))
	return b.String()
}
