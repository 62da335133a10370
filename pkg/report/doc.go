// Package report formats run reports, detection surveys and plans for the
// terminal. Formatting is pure: every function returns text and writes
// nothing. Colour comes from lipgloss and is disabled unless the caller
// asks for it, so captured output stays plain.
package report
