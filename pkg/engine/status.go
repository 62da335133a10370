package engine

import (
	"encoding/json"
	"fmt"
)

// SourceKind identifies which installer family a unit belongs to.
type SourceKind string

const (
	// KindSystemPackage is a package from the platform package manager (apt, brew).
	KindSystemPackage SourceKind = "system-package"

	// KindCask is a macOS application installed through Homebrew casks.
	KindCask SourceKind = "cask"

	// KindSnap is an Ubuntu application installed through snapd.
	KindSnap SourceKind = "snap"

	// KindLanguagePackage is a tool installed through a language package manager
	// (npm, pipx, uv, cargo, go, gem).
	KindLanguagePackage SourceKind = "language-package"

	// KindBinaryDownload is a single executable downloaded and marked executable.
	KindBinaryDownload SourceKind = "binary-download"

	// KindGitClone is a git repository cloned to a fixed destination.
	KindGitClone SourceKind = "git-clone"

	// KindScript is a vendor install script fetched and run through a shell.
	KindScript SourceKind = "script"

	// KindGeneratedFile is a configuration file derived from the capability set.
	KindGeneratedFile SourceKind = "generated-file"
)

// SourceKinds lists every supported kind in a stable order.
var SourceKinds = []SourceKind{
	KindSystemPackage, KindCask, KindSnap, KindLanguagePackage,
	KindBinaryDownload, KindGitClone, KindScript, KindGeneratedFile,
}

// Validate checks if the source kind is valid.
func (k SourceKind) Validate() error {
	for _, known := range SourceKinds {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("invalid source kind: %s", k)
}

// Presence is the tri-state result of detecting a unit.
type Presence string

const (
	// PresenceAbsent indicates the unit is not installed.
	PresenceAbsent Presence = "absent"

	// PresenceStale indicates the unit is installed but below the desired version.
	PresenceStale Presence = "present_stale"

	// PresenceCurrent indicates the unit is installed at the desired version.
	PresenceCurrent Presence = "present_current"
)

// IsPresent returns true if the unit is installed at any version.
func (p Presence) IsPresent() bool {
	return p == PresenceStale || p == PresenceCurrent
}

// Validate checks if the presence is valid.
func (p Presence) Validate() error {
	switch p {
	case PresenceAbsent, PresenceStale, PresenceCurrent:
		return nil
	default:
		return fmt.Errorf("invalid presence: %s", p)
	}
}

// OutcomeKind is the terminal result of processing a unit in one run.
type OutcomeKind string

const (
	// OutcomeInstalled indicates the unit was absent and is now present.
	OutcomeInstalled OutcomeKind = "installed"

	// OutcomeAlreadyPresent indicates the unit was current and nothing ran.
	OutcomeAlreadyPresent OutcomeKind = "already_present"

	// OutcomeUpgraded indicates the unit was stale and has been upgraded.
	OutcomeUpgraded OutcomeKind = "upgraded"

	// OutcomeFailed indicates the install action failed or could not be verified.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeSkipped indicates the unit was not attempted.
	OutcomeSkipped OutcomeKind = "skipped"
)

// IsSuccess returns true if the unit is present after the run.
func (o OutcomeKind) IsSuccess() bool {
	return o == OutcomeInstalled || o == OutcomeAlreadyPresent || o == OutcomeUpgraded
}

// IsChange returns true if the run modified the machine for this unit.
func (o OutcomeKind) IsChange() bool {
	return o == OutcomeInstalled || o == OutcomeUpgraded
}

// Validate checks if the outcome kind is valid.
func (o OutcomeKind) Validate() error {
	switch o {
	case OutcomeInstalled, OutcomeAlreadyPresent, OutcomeUpgraded,
		OutcomeFailed, OutcomeSkipped:
		return nil
	default:
		return fmt.Errorf("invalid outcome kind: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o OutcomeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *OutcomeKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = OutcomeKind(str)
	return o.Validate()
}

// Action is the side-effecting operation an install backend performs.
type Action string

const (
	// ActionInstall installs an absent unit.
	ActionInstall Action = "install"

	// ActionUpgrade upgrades a stale unit in place.
	ActionUpgrade Action = "upgrade"
)

// DependencyType represents the type of dependency between units.
type DependencyType string

const (
	// DependencyRequire indicates a hard dependency that must succeed.
	DependencyRequire DependencyType = "require"

	// DependencyOrder indicates ordering without success requirement.
	DependencyOrder DependencyType = "order"
)

// EventType represents the type of event in the run timeline.
type EventType string

const (
	// EventTypeRunStarted indicates a run has started.
	EventTypeRunStarted EventType = "run_started"

	// EventTypeRunCompleted indicates a run has completed, cancelled or not.
	EventTypeRunCompleted EventType = "run_completed"

	// EventTypeUnitStarted indicates detection of a unit has begun.
	EventTypeUnitStarted EventType = "unit_started"

	// EventTypeUnitCompleted indicates a unit reached its terminal outcome.
	EventTypeUnitCompleted EventType = "unit_completed"

	// EventTypeWarning indicates a warning was raised.
	EventTypeWarning EventType = "warning"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeWarning:
		return "warning"
	default:
		return "info"
	}
}
