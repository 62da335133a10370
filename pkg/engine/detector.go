package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Detector classifies units as absent, stale or current on the live machine.
type Detector struct {
	backends *BackendRegistry
	logger   zerolog.Logger
}

// NewDetector creates a detector over the registered backends.
func NewDetector(backends *BackendRegistry, logger zerolog.Logger) *Detector {
	return &Detector{backends: backends, logger: logger}
}

// Detect probes a unit. It never returns an error: a failing probe is
// reported as absent with a warning, so the installer gets to try.
func (d *Detector) Detect(ctx context.Context, unit Unit, state *State) Detection {
	backend, err := d.backends.Get(unit.Kind)
	if err != nil {
		return d.recover(unit, err)
	}

	probe, err := backend.Probe(ctx, unit, state)
	if err != nil {
		return d.recover(unit, err)
	}

	det := Detection{Presence: PresenceAbsent, Version: probe.Version}
	if !probe.Present {
		return det
	}

	det.Presence = PresenceCurrent
	if probe.Outdated {
		det.Presence = PresenceStale
	}

	if unit.MinVersion != "" {
		switch satisfied, ok := VersionAtLeast(probe.Version, unit.MinVersion); {
		case !ok:
			det.Warnings = append(det.Warnings,
				fmt.Sprintf("cannot compare version %q with minimum %s", probe.Version, unit.MinVersion))
		case !satisfied:
			det.Presence = PresenceStale
		}
	}

	return det
}

func (d *Detector) recover(unit Unit, err error) Detection {
	derr := NewDetectionError("detection failed", err).WithUnit(unit.ID)
	d.logger.Warn().Err(err).Str("unit", unit.ID).Msg("Detection failed, treating unit as absent")
	return Detection{
		Presence: PresenceAbsent,
		Warnings: []string{derr.Error()},
	}
}
