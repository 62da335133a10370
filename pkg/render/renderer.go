package render

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// ResultKind classifies what Render did to the target file.
type ResultKind string

const (
	// ResultUnchanged means the file already had the rendered content.
	ResultUnchanged ResultKind = "unchanged"

	// ResultWritten means the file did not exist and was created.
	ResultWritten ResultKind = "written"

	// ResultBackedUpAndWritten means differing content was backed up and replaced.
	ResultBackedUpAndWritten ResultKind = "backed_up_and_written"
)

// Result is the outcome of rendering one artifact.
type Result struct {
	Kind ResultKind `json:"kind"`
	Path string     `json:"path"`

	// BackupPath is set for ResultBackedUpAndWritten.
	BackupPath string `json:"backup_path,omitempty"`
}

// backupFingerprintLen is the number of hex digits of the old content's hash
// used in backup names.
const backupFingerprintLen = 12

// Renderer writes artifacts to disk.
type Renderer struct {
	mode   fs.FileMode
	dryRun bool
	logger zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFileMode sets the mode of newly created files.
func WithFileMode(mode fs.FileMode) Option {
	return func(r *Renderer) {
		r.mode = mode
	}
}

// WithDryRun makes Render report what it would do without writing.
func WithDryRun(dryRun bool) Option {
	return func(r *Renderer) {
		r.dryRun = dryRun
	}
}

// NewRenderer creates a new renderer.
func NewRenderer(logger zerolog.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		mode:   0o644,
		logger: logger.With().Str("component", "renderer").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render brings the artifact's file in line with caps.
func (r *Renderer) Render(artifact Artifact, caps engine.CapabilitySet) (Result, error) {
	content := artifact.Content(caps)
	result := Result{Path: artifact.Path}

	old, exists, err := readExisting(artifact.Path)
	if err != nil {
		return result, renderError(artifact, "failed to read existing file", err)
	}

	log := r.logger.With().Str("artifact", artifact.Name).Str("path", artifact.Path).Logger()

	switch {
	case exists && bytes.Equal(old, content):
		result.Kind = ResultUnchanged
		log.Debug().Msg("Artifact unchanged")
		return result, nil
	case !exists:
		result.Kind = ResultWritten
	default:
		result.Kind = ResultBackedUpAndWritten
		result.BackupPath = BackupPath(artifact.Path, old)
	}

	if r.dryRun {
		return result, nil
	}

	mode := r.mode
	if exists {
		if info, err := os.Stat(artifact.Path); err == nil {
			mode = info.Mode().Perm()
		}
		if err := writeAtomic(result.BackupPath, old, mode); err != nil {
			return result, renderError(artifact, "failed to back up existing file", err)
		}
		log.Info().Str("backup", result.BackupPath).Msg("Backed up existing artifact")
	}

	if err := writeAtomic(artifact.Path, content, mode); err != nil {
		return result, renderError(artifact, "failed to write file", err)
	}

	log.Info().Str("result", string(result.Kind)).Int("bytes", len(content)).Msg("Artifact rendered")
	return result, nil
}

// Diff returns a unified diff from the current file to the rendered content,
// or "" if they are identical.
func (r *Renderer) Diff(artifact Artifact, caps engine.CapabilitySet) (string, error) {
	old, _, err := readExisting(artifact.Path)
	if err != nil {
		return "", renderError(artifact, "failed to read existing file", err)
	}
	content := artifact.Content(caps)
	if bytes.Equal(old, content) {
		return "", nil
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(content)),
		FromFile: artifact.Path,
		ToFile:   artifact.Path + " (rendered)",
		Context:  3,
	})
	if err != nil {
		return "", renderError(artifact, "failed to diff", err)
	}
	return diff, nil
}

// BackupPath returns the sibling path that holds content before it is
// replaced. The name carries a blake3 fingerprint of content, so repeated
// renders of the same old content reuse one backup.
func BackupPath(path string, content []byte) string {
	sum := blake3.Sum256(content)
	return fmt.Sprintf("%s.bak.%s", path, hex.EncodeToString(sum[:])[:backupFingerprintLen])
}

func readExisting(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// writeAtomic writes data to a temporary sibling and renames it over path.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	success = true
	return nil
}

func renderError(artifact Artifact, message string, err error) *engine.EngineError {
	return engine.NewRenderError(message, err).
		WithCode(engine.ErrCodeArtifactWrite).
		WithUnit(artifact.Name).
		WithDetail("path", artifact.Path)
}
