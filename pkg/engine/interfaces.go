package engine

import (
	"context"
	"fmt"
	"sort"
)

// ProbeResult is what a detection backend observed for a unit.
type ProbeResult struct {
	// Present is true if the unit is installed.
	Present bool

	// Version is the installed version, if the backend can report one.
	Version string

	// Outdated is true if the backend considers the installed copy stale,
	// for instance an available upgrade on a unit that asks for upgrades, or
	// a generated file whose content differs from what would be rendered.
	Outdated bool
}

// DetectionBackend answers presence and version queries for one source kind.
// Implementations must be read-only.
type DetectionBackend interface {
	Probe(ctx context.Context, unit Unit, state *State) (ProbeResult, error)
}

// ExecResult is the raw result of an install action.
type ExecResult struct {
	// ExitCode is the exit status of the external process; 0 is success.
	ExitCode int

	// Output is the combined stdout and stderr.
	Output string
}

// InstallBackend performs install and upgrade actions for one source kind.
// A returned error means the action could not be carried out at all; a
// non-zero ExitCode means it ran and failed.
type InstallBackend interface {
	Execute(ctx context.Context, unit Unit, action Action, state *State) (ExecResult, error)
}

// Backend is both halves of a source kind.
type Backend interface {
	DetectionBackend
	InstallBackend
}

// BackendRegistry maps source kinds to their backends.
type BackendRegistry struct {
	backends map[SourceKind]Backend
}

// NewBackendRegistry creates an empty registry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{backends: make(map[SourceKind]Backend)}
}

// Register binds a backend to a source kind, replacing any previous binding.
func (r *BackendRegistry) Register(kind SourceKind, backend Backend) {
	r.backends[kind] = backend
}

// Get returns the backend for a kind.
func (r *BackendRegistry) Get(kind SourceKind) (Backend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, NewInstallError(fmt.Sprintf("no backend registered for kind %s", kind), nil).
			WithCode(ErrCodeNoBackend)
	}
	return b, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *BackendRegistry) Kinds() []SourceKind {
	kinds := make([]SourceKind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Observer receives run events synchronously, in order.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

// Observe calls f(ctx, event).
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// Observe forwards the event to every non-nil observer.
func (m MultiObserver) Observe(ctx context.Context, event Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, event)
		}
	}
}
