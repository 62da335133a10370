package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// Backend converges generated-file units. A file is present when it exists
// and outdated when its content differs from what would be rendered.
type Backend struct {
	renderer *Renderer

	mu      sync.Mutex
	records []engine.RenderRecord
}

// NewBackend creates a generated-file backend over renderer.
func NewBackend(renderer *Renderer) *Backend {
	return &Backend{renderer: renderer}
}

func capabilities(unit engine.Unit, state *engine.State) engine.CapabilitySet {
	if state == nil {
		return engine.NewCapabilitySet()
	}
	return state.CapabilitiesFor(unit)
}

// Probe implements engine.DetectionBackend.
func (b *Backend) Probe(_ context.Context, unit engine.Unit, state *engine.State) (engine.ProbeResult, error) {
	artifact, err := ArtifactFor(unit)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	old, exists, err := readExisting(artifact.Path)
	if err != nil {
		return engine.ProbeResult{}, fmt.Errorf("failed to read %s: %w", artifact.Path, err)
	}
	if !exists {
		return engine.ProbeResult{}, nil
	}

	content := artifact.Content(capabilities(unit, state))
	return engine.ProbeResult{Present: true, Outdated: string(old) != string(content)}, nil
}

// Execute implements engine.InstallBackend. Install and upgrade both render.
func (b *Backend) Execute(_ context.Context, unit engine.Unit, _ engine.Action, state *engine.State) (engine.ExecResult, error) {
	artifact, err := ArtifactFor(unit)
	if err != nil {
		return engine.ExecResult{}, err
	}

	res, err := b.renderer.Render(artifact, capabilities(unit, state))
	if err != nil {
		return engine.ExecResult{}, err
	}

	b.mu.Lock()
	b.records = append(b.records, engine.RenderRecord{
		Unit:   unit.ID,
		Path:   res.Path,
		Result: string(res.Kind),
		Backup: res.BackupPath,
	})
	b.mu.Unlock()

	out := fmt.Sprintf("%s %s", res.Kind, res.Path)
	if res.BackupPath != "" {
		out += fmt.Sprintf(" (backup %s)", res.BackupPath)
	}
	return engine.ExecResult{Output: out}, nil
}

// Records returns what every Execute call rendered, in call order.
func (b *Backend) Records() []engine.RenderRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.RenderRecord(nil), b.records...)
}

// Register binds the backend to generated-file units.
func (b *Backend) Register(registry *engine.BackendRegistry) {
	registry.Register(engine.KindGeneratedFile, b)
}
