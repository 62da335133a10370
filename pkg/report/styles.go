package report

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

type styles struct {
	header  lipgloss.Style
	section lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	changed lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	warning lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true),
		section: r.NewStyle().Bold(true).Underline(true),
		dim:     r.NewStyle().Faint(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		changed: r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		failed:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skipped: r.NewStyle().Foreground(lipgloss.Color("3")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (s styles) outcome(kind engine.OutcomeKind) lipgloss.Style {
	switch kind {
	case engine.OutcomeInstalled, engine.OutcomeUpgraded:
		return s.changed
	case engine.OutcomeAlreadyPresent:
		return s.ok
	case engine.OutcomeFailed:
		return s.failed
	default:
		return s.skipped
	}
}

func (s styles) presence(p engine.Presence) lipgloss.Style {
	switch p {
	case engine.PresenceCurrent:
		return s.ok
	case engine.PresenceStale:
		return s.warning
	default:
		return s.failed
	}
}

// Formatter renders reports with optional colour.
type Formatter struct {
	styles styles
}

// NewFormatter creates a formatter for output written to w. Colour is used
// only when color is true.
func NewFormatter(w io.Writer, color bool) *Formatter {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Formatter{styles: newStyles(r)}
}

// ColorEnabled reports whether f is a terminal that should get colour.
// NO_COLOR disables colour regardless.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

var plain = NewFormatter(io.Discard, false)
