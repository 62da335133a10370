package engine

import (
	"time"
)

// Unit represents one declared piece of desired machine state.
// Units are immutable once placed in a Catalog.
type Unit struct {
	// ID is the stable identity of this unit, unique within a catalog.
	ID string `json:"id"`

	// Kind selects the detection and install backend.
	Kind SourceKind `json:"kind"`

	// Label is the human-readable name shown in reports.
	Label string `json:"label,omitempty"`

	// Rationale explains why the unit is in the catalog.
	Rationale string `json:"rationale,omitempty"`

	// DependsOn lists unit IDs that must succeed before this unit is attempted.
	DependsOn []string `json:"depends_on,omitempty"`

	// After lists unit IDs that must be finalized first, whatever their outcome.
	After []string `json:"after,omitempty"`

	// Package is the name the backend installs; defaults to ID.
	Package string `json:"package,omitempty"`

	// Manager selects the concrete tool within a kind (apt, brew, npm, cargo, ...).
	Manager string `json:"manager,omitempty"`

	// MinVersion is the lowest acceptable installed version, if any.
	MinVersion string `json:"min_version,omitempty"`

	// Upgrade asks the backend to treat an available upgrade as stale.
	Upgrade bool `json:"upgrade,omitempty"`

	// Source is a download URL or repository URL.
	Source string `json:"source,omitempty"`

	// Destination is where a binary or clone ends up.
	Destination string `json:"destination,omitempty"`

	// Ref is a git branch or tag.
	Ref string `json:"ref,omitempty"`

	// Checksum is the expected sha256 of a downloaded file, hex encoded.
	Checksum string `json:"checksum,omitempty"`

	// Args are extra arguments passed to the installer.
	Args []string `json:"args,omitempty"`

	// Detect overrides how presence and version are probed.
	Detect DetectSpec `json:"detect,omitempty"`

	// Shell is this unit's contribution to generated shell configuration.
	Shell ShellFragment `json:"shell,omitempty"`

	// Artifact describes the generated file; set only for generated-file units.
	Artifact *ArtifactSpec `json:"artifact,omitempty"`
}

// PackageName returns the package name the backend should install.
func (u Unit) PackageName() string {
	if u.Package != "" {
		return u.Package
	}
	return u.ID
}

// DisplayName returns the label, falling back to the ID.
func (u Unit) DisplayName() string {
	if u.Label != "" {
		return u.Label
	}
	return u.ID
}

// Dependencies returns every dependency edge of the unit.
func (u Unit) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(u.DependsOn)+len(u.After))
	for _, id := range u.DependsOn {
		deps = append(deps, Dependency{TargetID: id, Type: DependencyRequire})
	}
	for _, id := range u.After {
		deps = append(deps, Dependency{TargetID: id, Type: DependencyOrder})
	}
	return deps
}

// clone returns a deep copy so catalog values cannot be mutated through callers.
func (u Unit) clone() Unit {
	c := u
	c.DependsOn = append([]string(nil), u.DependsOn...)
	c.After = append([]string(nil), u.After...)
	c.Args = append([]string(nil), u.Args...)
	c.Detect.VersionArgs = append([]string(nil), u.Detect.VersionArgs...)
	c.Shell = u.Shell.clone()
	if u.Artifact != nil {
		a := *u.Artifact
		a.Header = append([]string(nil), u.Artifact.Header...)
		a.Sources = append([]string(nil), u.Artifact.Sources...)
		c.Artifact = &a
	}
	return c
}

// DetectSpec describes how to probe a unit on the live machine.
type DetectSpec struct {
	// Command is the executable looked up on PATH.
	Command string `json:"command,omitempty"`

	// VersionArgs are passed to Command to print its version.
	VersionArgs []string `json:"version_args,omitempty"`

	// VersionPattern is a regexp whose first group captures the version.
	VersionPattern string `json:"version_pattern,omitempty"`

	// Path is a file or directory whose existence marks the unit present.
	Path string `json:"path,omitempty"`
}

// ShellFragment is what a present unit contributes to generated shell files.
type ShellFragment struct {
	// Path entries are prepended to PATH.
	Path []string `json:"path,omitempty"`

	// Env holds exported environment variables.
	Env map[string]string `json:"env,omitempty"`

	// Aliases holds shell aliases.
	Aliases map[string]string `json:"aliases,omitempty"`

	// Init holds raw shell lines, emitted verbatim in declaration order.
	Init []string `json:"init,omitempty"`
}

// IsEmpty returns true if the fragment contributes nothing.
func (f ShellFragment) IsEmpty() bool {
	return len(f.Path) == 0 && len(f.Env) == 0 && len(f.Aliases) == 0 && len(f.Init) == 0
}

func (f ShellFragment) clone() ShellFragment {
	c := ShellFragment{
		Path: append([]string(nil), f.Path...),
		Init: append([]string(nil), f.Init...),
	}
	if f.Env != nil {
		c.Env = make(map[string]string, len(f.Env))
		for k, v := range f.Env {
			c.Env[k] = v
		}
	}
	if f.Aliases != nil {
		c.Aliases = make(map[string]string, len(f.Aliases))
		for k, v := range f.Aliases {
			c.Aliases[k] = v
		}
	}
	return c
}

// ArtifactSpec describes a generated configuration file.
type ArtifactSpec struct {
	// Path is the target file; a leading ~ expands to the home directory.
	Path string `json:"path"`

	// Format selects the content generator (e.g. "zsh", "bash", "env").
	Format string `json:"format"`

	// Header lines are written as comments at the top of the file.
	Header []string `json:"header,omitempty"`

	// Sources restricts contributors to these unit IDs; empty means every unit.
	Sources []string `json:"sources,omitempty"`
}

// Dependency represents an edge in the dependency graph.
type Dependency struct {
	// TargetID is the ID of the unit this depends on.
	TargetID string `json:"target_id"`

	// Type is the type of dependency relationship.
	Type DependencyType `json:"type"`
}

// Detection is the result of probing a unit.
type Detection struct {
	// Presence is the tri-state detection result.
	Presence Presence `json:"presence"`

	// Version is the installed version when the backend could report it.
	Version string `json:"version,omitempty"`

	// Warnings collects recovered detection errors.
	Warnings []string `json:"warnings,omitempty"`
}

// Outcome is the terminal result of one unit in one run.
type Outcome struct {
	// Kind is the outcome classification.
	Kind OutcomeKind `json:"kind"`

	// Reason explains failed and skipped outcomes.
	Reason string `json:"reason,omitempty"`

	// Output is the captured installer output, kept only on failure.
	Output string `json:"output,omitempty"`

	// Error is the classified error behind a failed outcome.
	Error *EngineError `json:"error,omitempty"`

	// Warnings are non-fatal issues raised while processing the unit.
	Warnings []string `json:"warnings,omitempty"`

	// Duration is the time spent on detection and installation.
	Duration time.Duration `json:"duration"`
}

// UnitResult pairs a unit with what happened to it.
type UnitResult struct {
	Unit      Unit      `json:"unit"`
	Stage     int       `json:"stage"`
	Detection Detection `json:"detection"`
	Outcome   Outcome   `json:"outcome"`
}

// Counts is the aggregate tally of outcomes in a run.
type Counts struct {
	Installed      int `json:"installed"`
	AlreadyPresent int `json:"already_present"`
	Upgraded       int `json:"upgraded"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
}

// Total returns the number of units counted.
func (c Counts) Total() int {
	return c.Installed + c.AlreadyPresent + c.Upgraded + c.Failed + c.Skipped
}

func (c *Counts) add(kind OutcomeKind) {
	switch kind {
	case OutcomeInstalled:
		c.Installed++
	case OutcomeAlreadyPresent:
		c.AlreadyPresent++
	case OutcomeUpgraded:
		c.Upgraded++
	case OutcomeFailed:
		c.Failed++
	case OutcomeSkipped:
		c.Skipped++
	}
}

// RunReport is the ordered record of one convergence run.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the last unit was finalized.
	CompletedAt time.Time `json:"completed_at"`

	// Results holds one entry per catalog unit, in execution order.
	Results []UnitResult `json:"results"`

	// Counts is the aggregate tally.
	Counts Counts `json:"counts"`

	// Cancelled is set when the run was interrupted before every unit ran.
	Cancelled bool `json:"cancelled,omitempty"`

	// DryRun is set when the run only detected and never installed.
	DryRun bool `json:"dry_run,omitempty"`

	// Renders records what happened to each generated file.
	Renders []RenderRecord `json:"renders,omitempty"`
}

// RenderRecord notes what rendering did to one generated file.
type RenderRecord struct {
	Unit   string `json:"unit"`
	Path   string `json:"path"`
	Result string `json:"result"`
	Backup string `json:"backup,omitempty"`
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Result returns the result for a unit ID.
func (r *RunReport) Result(id string) (UnitResult, bool) {
	for _, res := range r.Results {
		if res.Unit.ID == id {
			return res, true
		}
	}
	return UnitResult{}, false
}

// Failures returns every failed result in report order.
func (r *RunReport) Failures() []UnitResult {
	var failed []UnitResult
	for _, res := range r.Results {
		if res.Outcome.Kind == OutcomeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// HasFailures returns true if any unit failed.
func (r *RunReport) HasFailures() bool {
	return r.Counts.Failed > 0
}

// OnlyRenderFailures returns true if there are failures and every one of
// them came from rendering a generated file.
func (r *RunReport) OnlyRenderFailures() bool {
	failures := r.Failures()
	if len(failures) == 0 {
		return false
	}
	for _, res := range failures {
		if res.Outcome.Error == nil || res.Outcome.Error.Class != ErrorClassRender {
			return false
		}
	}
	return true
}

// Warnings returns every detection and outcome warning, prefixed with the unit ID.
func (r *RunReport) Warnings() []string {
	var warnings []string
	for _, res := range r.Results {
		for _, w := range res.Detection.Warnings {
			warnings = append(warnings, res.Unit.ID+": "+w)
		}
		for _, w := range res.Outcome.Warnings {
			warnings = append(warnings, res.Unit.ID+": "+w)
		}
	}
	return warnings
}

func (r *RunReport) record(res UnitResult) {
	r.Results = append(r.Results, res)
	r.Counts.add(res.Outcome.Kind)
}

// Event represents a timeline event during a run.
type Event struct {
	// Type is the event type.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the run this event belongs to.
	RunID string `json:"run_id"`

	// Unit is set for unit-scoped events.
	Unit *Unit `json:"unit,omitempty"`

	// Result is set for unit completion events.
	Result *UnitResult `json:"result,omitempty"`

	// Report is set for run completion events.
	Report *RunReport `json:"report,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`
}
