package engine

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/utils"
)

const lockFileName = "root.lock"

var ErrRootLocked = errors.New("sync root locked by another process")

// RootLock is an advisory file lock held for the duration of a pass, so that
// only one process computes and applies deltas for a root at a time.
type RootLock struct {
	dir   string
	flock *flock.Flock
}

func NewRootLock(root string) *RootLock {
	dir := filepath.Join(root, delta.MetadataDirName)
	return &RootLock{
		dir:   dir,
		flock: flock.New(filepath.Join(dir, lockFileName)),
	}
}

// Lock takes the lock without waiting. It returns ErrRootLocked when another
// holder has it.
func (l *RootLock) Lock() error {
	if err := utils.EnsureDir(l.dir); err != nil {
		return fmt.Errorf("create %s: %w", l.dir, err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock root: %w", err)
	}
	if !locked {
		return ErrRootLocked
	}
	return nil
}

func (l *RootLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock root: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *RootLock) Path() string {
	return l.flock.Path()
}
