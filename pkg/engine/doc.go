// Package engine converges a machine onto a declared catalog of units.
//
// # Overview
//
// A run has four steps:
//
//  1. Catalog - units are validated into an immutable Catalog
//  2. Plan - the Planner layers units into stages (Kahn order, ties by declaration)
//  3. Run - the Runner detects each unit and installs what is absent or stale
//  4. Report - the RunReport lists every unit exactly once with its outcome
//
// # Units and Backends
//
// A Unit is data only. Detection and installation are delegated to the Backend
// registered for the unit's SourceKind:
//
//	type DetectionBackend interface {
//	    Probe(ctx context.Context, unit Unit, state *State) (ProbeResult, error)
//	}
//
//	type InstallBackend interface {
//	    Execute(ctx context.Context, unit Unit, action Action, state *State) (ExecResult, error)
//	}
//
// The Detector turns a probe into a tri-state Presence. A probe error is
// never propagated; the unit is treated as absent and a warning is kept.
// The Installer always re-detects after a successful action and downgrades
// the outcome to failed if the unit is still absent.
//
// # Failure Isolation
//
// Units run one at a time. A failed unit never prevents an independent unit
// from running. A unit whose DependsOn target failed or was skipped is
// skipped without running its action. After edges only order units.
//
// # Error Classification
//
// Errors carry an ErrorClass:
//
//   - Configuration: cycles, duplicates, unknown dependencies; fatal before any install
//   - Detection: recovered as absent with a warning
//   - Install: recorded as a failed outcome
//   - Render: a generated file could not be written
//   - Conflict: another run holds the machine lock
//
// Use the helper functions to inspect errors:
//
//	if engine.IsConfiguration(err) {
//	    // nothing was installed
//	}
//
// # Example Usage
//
//	catalog, err := engine.NewCatalog(units...)
//	runner := engine.NewRunner(registry, observer, logger)
//	report, err := runner.Run(ctx, catalog, engine.RunOptions{})
//	if report.HasFailures() {
//	    // exit non-zero
//	}
package engine
