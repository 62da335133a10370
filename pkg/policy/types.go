package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but never block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that abort a run before anything is installed.
	SeverityError Severity = "error"
)

// Validate checks if the severity is valid.
func (s Severity) Validate() error {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return nil
	default:
		return fmt.Errorf("invalid severity: %s", s)
	}
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its deny rules produce violations
	// at Severity; its warn rules always produce warnings.
	Rego string `json:"rego"`

	// Severity is the default severity for deny results.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single policy finding against one unit.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Unit is the ID of the offending unit.
	Unit string `json:"unit,omitempty"`

	// Message is a human-readable explanation.
	Message string `json:"message"`

	// Severity is the finding's severity level.
	Severity Severity `json:"severity"`
}

// String formats the violation as "unit: message (policy)".
func (v Violation) String() string {
	if v.Unit == "" {
		return fmt.Sprintf("%s (%s)", v.Message, v.Policy)
	}
	return fmt.Sprintf("%s: %s (%s)", v.Unit, v.Message, v.Policy)
}

// Input is the document a policy sees as `input` for each unit.
type Input struct {
	Unit      engine.Unit `json:"unit"`
	Platform  string      `json:"platform,omitempty"`
	Operation string      `json:"operation"`
}

// Result is the outcome of evaluating every enabled policy over a catalog.
type Result struct {
	// Allowed is false if any error-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists error-severity findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists findings that do not block.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns a configuration error listing every blocking violation, or
// nil if the catalog is allowed.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return engine.NewConfigurationError(
		fmt.Sprintf("policy check failed: %s", strings.Join(msgs, "; ")), nil).
		WithCode(engine.ErrCodePolicyViolation).
		WithDetail("violations", r.Violations)
}

// WarningMessages returns the warnings formatted for display.
func (r *Result) WarningMessages() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}
