package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// fakeMachine is an in-memory machine driven by the test.
type fakeMachine struct {
	units    map[string]*fakeUnit
	executed []string
	probed   []string
}

type fakeUnit struct {
	present  bool
	version  string
	outdated bool

	probeErr error
	execErr  error
	exitCode int
	output   string

	// noop makes Execute exit 0 without changing anything.
	noop bool
	// installVersion is the version reported after a successful action.
	installVersion string
	// staysOutdated keeps the unit stale after an upgrade.
	staysOutdated bool
}

func newFakeMachine() *fakeMachine {
	return &fakeMachine{units: make(map[string]*fakeUnit)}
}

func (m *fakeMachine) unit(id string) *fakeUnit {
	u, ok := m.units[id]
	if !ok {
		u = &fakeUnit{}
		m.units[id] = u
	}
	return u
}

func (m *fakeMachine) Probe(ctx context.Context, unit Unit, state *State) (ProbeResult, error) {
	m.probed = append(m.probed, unit.ID)
	u := m.unit(unit.ID)
	if u.probeErr != nil {
		return ProbeResult{}, u.probeErr
	}
	return ProbeResult{Present: u.present, Version: u.version, Outdated: u.outdated}, nil
}

func (m *fakeMachine) Execute(ctx context.Context, unit Unit, action Action, state *State) (ExecResult, error) {
	m.executed = append(m.executed, unit.ID)
	u := m.unit(unit.ID)
	if u.execErr != nil {
		return ExecResult{ExitCode: -1, Output: u.output}, u.execErr
	}
	if u.exitCode != 0 {
		return ExecResult{ExitCode: u.exitCode, Output: u.output}, nil
	}
	if !u.noop {
		u.present = true
		u.outdated = u.staysOutdated
		if u.installVersion != "" {
			u.version = u.installVersion
		}
	}
	return ExecResult{Output: u.output}, nil
}

func (m *fakeMachine) wasExecuted(id string) bool {
	for _, e := range m.executed {
		if e == id {
			return true
		}
	}
	return false
}

func newTestRegistry(m *fakeMachine) *BackendRegistry {
	registry := NewBackendRegistry()
	for _, kind := range SourceKinds {
		registry.Register(kind, m)
	}
	return registry
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func pkg(id string, deps ...string) Unit {
	return Unit{ID: id, Kind: KindSystemPackage, Label: id, DependsOn: deps}
}

func mustCatalog(t *testing.T, units ...Unit) *Catalog {
	t.Helper()
	c, err := NewCatalog(units...)
	if err != nil {
		t.Fatalf("Expected no error building catalog, got: %v", err)
	}
	return c
}

var errLocked = errors.New("could not get lock /var/lib/dpkg/lock-frontend")
