package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports changes to catalog, settings and policy files. Bursts of
// events are coalesced so one editor save triggers one callback.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   zerolog.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// NewWatcher creates a watcher that waits debounce after the last event
// before reporting.
func NewWatcher(logger zerolog.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		debounce: debounce,
		logger:   logger.With().Str("component", "watcher").Logger(),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Add watches paths. Files are watched through their parent directory so
// atomic saves that replace the file are still seen; directories are
// watched recursively for supported files.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		path = filepath.Clean(path)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			w.files[path] = true
			if err := w.watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			w.dirs[p] = true
			return w.watcher.Add(p)
		})
		if err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
	}

	w.logger.Debug().Int("paths", len(paths)).Msg("Watching paths")
	return nil
}

// relevant reports whether an event on name should trigger a callback.
func (w *Watcher) relevant(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[name] {
		return true
	}
	if !w.dirs[filepath.Dir(name)] {
		return false
	}
	return isSupported(name) || filepath.Ext(name) == ".rego"
}

// Run blocks until ctx is done, calling onChange with the sorted set of
// paths that changed in each burst. Callbacks never overlap; events that
// arrive while one runs are reported in the next.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	var fire <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New directories under a watched tree are picked up too.
			if event.Op&fsnotify.Create != 0 {
				w.watchNewDir(event.Name)
			}
			if !w.relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("File changed")

			pending[event.Name] = true
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			w.logger.Info().Strs("files", changed).Msg("Changes detected")
			onChange(ctx, changed)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) watchNewDir(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[filepath.Dir(path)] {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch new directory")
		return
	}
	w.dirs[path] = true
}

// Close stops the watcher without waiting for Run to return.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
