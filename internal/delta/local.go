package delta

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalCalculator compares a walk of the sync root against the persisted sync
// state and reports what changed locally since the last reconciled pass.
type LocalCalculator struct {
	store  StateReader
	hasher *Hasher
	ignore *IgnoreList
	now    func() time.Time
}

type LocalOption func(*LocalCalculator)

// WithIgnore excludes matching paths from the walk and from delete detection.
func WithIgnore(ignore *IgnoreList) LocalOption {
	return func(c *LocalCalculator) {
		c.ignore = ignore
	}
}

// WithClock sets the time source used for directory creates and deletions.
func WithClock(now func() time.Time) LocalOption {
	return func(c *LocalCalculator) {
		c.now = now
	}
}

func NewLocalCalculator(store StateReader, hasher *Hasher, opts ...LocalOption) *LocalCalculator {
	if hasher == nil {
		hasher = NewHasher()
	}
	c := &LocalCalculator{
		store:  store,
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate walks root and returns its local delta. Unchanged files are not
// included. Directories are only ever reported as created.
//
// A tracked path the walk did not reach is reported deleted only when it is
// gone from disk. Paths the walk skipped, such as entries under an unreadable
// directory, are left alone.
//
// The call fails as a whole when the root cannot be read, a file cannot be
// hashed, or the state store returns an error.
func (c *LocalCalculator) Calculate(root string) ([]DeltaEntry, error) {
	tstart := time.Now()
	var changes []DeltaEntry
	seen := make(map[string]struct{})

	scanner := NewScanner(root, WithScanIgnore(c.ignore))
	for entry, err := range scanner.Scan() {
		if err != nil {
			return nil, fmt.Errorf("local delta: %w", err)
		}
		seen[entry.Path] = struct{}{}

		stored, err := c.store.GetSyncStateByPath(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("local delta: get state %s: %w", entry.Path, err)
		}

		if entry.IsDir {
			if stored == nil {
				changes = append(changes, DeltaEntry{
					Path:     entry.Path,
					Action:   ActionCreate,
					Modified: c.now(),
					IsDir:    true,
				})
			}
			continue
		}

		hash, err := c.hasher.Hash(entry.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("local delta: %w", err)
		}

		switch {
		case stored == nil:
			changes = append(changes, DeltaEntry{
				Path:     entry.Path,
				Action:   ActionCreate,
				Hash:     hash,
				Size:     entry.Size,
				Modified: entry.ModTime,
			})
		case stored.LocalHash != hash:
			changes = append(changes, DeltaEntry{
				Path:     entry.Path,
				Action:   ActionModify,
				Hash:     hash,
				Size:     entry.Size,
				Modified: entry.ModTime,
			})
		}
	}

	states, err := c.store.GetAllSyncStates()
	if err != nil {
		return nil, fmt.Errorf("local delta: list states: %w", err)
	}
	deleted := 0
	for _, state := range states {
		if _, ok := seen[state.LocalPath]; ok {
			continue
		}
		if c.ignore.ShouldIgnore(state.LocalPath, false) {
			continue
		}
		if !missing(root, state.LocalPath) {
			continue
		}
		changes = append(changes, DeltaEntry{
			Path:     state.LocalPath,
			Action:   ActionDelete,
			Hash:     state.LocalHash,
			Modified: c.now(),
		})
		deleted++
	}

	slog.Debug("local delta", "root", root, "scanned", len(seen), "changes", len(changes), "deleted", deleted, "took", time.Since(tstart))
	return changes, nil
}

// missing reports whether relPath is absent under root. Stat errors other than
// not-exist leave the path in place.
func missing(root, relPath string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(relPath)))
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	slog.Debug("local delta keep unreachable path", "path", relPath, "error", err)
	return false
}
