//go:build darwin || linux

// Package lock keeps two converge runs from mutating the same machine at
// once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// Lock is an exclusive advisory lock on a file. The kernel drops it if
// the process dies, so a stale file never blocks later runs.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock at path without blocking. If another process
// holds it, a conflict error carrying the holder's PID is returned.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(file)
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			msg := "another converge run is in progress"
			if holder > 0 {
				msg = fmt.Sprintf("another converge run is in progress (pid %d)", holder)
			}
			return nil, engine.NewConflictError(msg, err).
				WithCode(engine.ErrCodeLockHeld).
				WithDetail("lock", path).
				WithDetail("pid", holder)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if err := writeHolder(file); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, fmt.Errorf("failed to record lock holder: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The file is left in place; removing it would
// let a waiting process lock an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

func writeHolder(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}
	return file.Sync()
}

// readHolder returns the PID recorded in the lock file, or 0.
func readHolder(file *os.File) int {
	buf := make([]byte, 32)
	n, _ := file.ReadAt(buf, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
