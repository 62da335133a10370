package backends

import (
	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// Options configures the default backend set.
type Options struct {
	// Runner runs external commands; defaults to an ExecRunner.
	Runner CommandRunner

	// Fetcher downloads binaries and installer scripts; defaults to NewFetcher.
	Fetcher *Fetcher

	// DefaultManager is used for system packages that do not name a manager.
	DefaultManager string
}

// NewRegistry registers a backend for every source kind except generated
// files, which belong to the renderer.
func NewRegistry(opts Options, logger zerolog.Logger) *engine.BackendRegistry {
	if opts.Runner == nil {
		opts.Runner = NewExecRunner(logger)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(logger)
	}

	registry := engine.NewBackendRegistry()

	packages := NewPackageBackend(opts.Runner, opts.DefaultManager, logger)
	registry.Register(engine.KindSystemPackage, packages)
	registry.Register(engine.KindCask, packages)
	registry.Register(engine.KindSnap, packages)

	registry.Register(engine.KindLanguagePackage, NewLanguageBackend(opts.Runner, logger))
	registry.Register(engine.KindBinaryDownload, NewDownloadBackend(opts.Fetcher, opts.Runner, logger))
	registry.Register(engine.KindGitClone, NewGitBackend(opts.Runner, logger))
	registry.Register(engine.KindScript, NewScriptBackend(opts.Fetcher, opts.Runner, logger))

	return registry
}
