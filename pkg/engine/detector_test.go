package engine

import (
	"context"
	"strings"
	"testing"
)

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name        string
		unit        Unit
		state       fakeUnit
		want        Presence
		wantWarning bool
	}{
		{
			name:  "absent",
			unit:  pkg("git"),
			state: fakeUnit{},
			want:  PresenceAbsent,
		},
		{
			name:  "present without version requirement",
			unit:  pkg("git"),
			state: fakeUnit{present: true, version: "2.39.2"},
			want:  PresenceCurrent,
		},
		{
			name:  "backend reports outdated",
			unit:  pkg("git"),
			state: fakeUnit{present: true, version: "2.39.2", outdated: true},
			want:  PresenceStale,
		},
		{
			name:  "below minimum version",
			unit:  Unit{ID: "nvim", Kind: KindBinaryDownload, MinVersion: "0.10.0"},
			state: fakeUnit{present: true, version: "NVIM v0.9.5"},
			want:  PresenceStale,
		},
		{
			name:  "at minimum version",
			unit:  Unit{ID: "nvim", Kind: KindBinaryDownload, MinVersion: "0.10"},
			state: fakeUnit{present: true, version: "0.10.0"},
			want:  PresenceCurrent,
		},
		{
			name:        "unparseable version keeps current with warning",
			unit:        Unit{ID: "tool", Kind: KindBinaryDownload, MinVersion: "1.0.0"},
			state:       fakeUnit{present: true, version: "nightly"},
			want:        PresenceCurrent,
			wantWarning: true,
		},
		{
			name:        "probe error is absent with warning",
			unit:        pkg("git"),
			state:       fakeUnit{present: true, probeErr: errLocked},
			want:        PresenceAbsent,
			wantWarning: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMachine()
			st := tt.state
			m.units[tt.unit.ID] = &st

			d := NewDetector(newTestRegistry(m), testLogger())
			det := d.Detect(context.Background(), tt.unit, NewState(mustCatalog(t, tt.unit)))

			if det.Presence != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, det.Presence)
			}
			if tt.wantWarning != (len(det.Warnings) > 0) {
				t.Errorf("Expected warning=%v, got %v", tt.wantWarning, det.Warnings)
			}
		})
	}
}

func TestDetector_ProbeErrorNamesUnit(t *testing.T) {
	m := newFakeMachine()
	m.unit("git").probeErr = errLocked

	d := NewDetector(newTestRegistry(m), testLogger())
	det := d.Detect(context.Background(), pkg("git"), NewState(mustCatalog(t, pkg("git"))))

	if len(det.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", det.Warnings)
	}
	if !strings.Contains(det.Warnings[0], "unit=git") || !strings.Contains(det.Warnings[0], "lock") {
		t.Errorf("Expected warning to name unit and cause, got %q", det.Warnings[0])
	}
}

func TestDetector_MissingBackend(t *testing.T) {
	d := NewDetector(NewBackendRegistry(), testLogger())
	det := d.Detect(context.Background(), pkg("git"), NewState(mustCatalog(t, pkg("git"))))

	if det.Presence != PresenceAbsent || len(det.Warnings) == 0 {
		t.Errorf("Expected absent with warning, got %+v", det)
	}
}
