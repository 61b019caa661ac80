package delta

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrRootNotDir = errors.New("sync root is not a directory")

// ScanEntry is one filesystem entry found under a sync root.
type ScanEntry struct {
	Path    string // slash separated, relative to the root
	AbsPath string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Scanner walks a sync root, following symbolic links. A directory reached
// through several links is walked under each path; only a link back to one of
// its own ancestors is cut.
// It keeps no state between scans, so every Scan starts from scratch.
type Scanner struct {
	root   string
	ignore *IgnoreList
}

type ScanOption func(*Scanner)

// WithScanIgnore prunes entries matched by the ignore list.
func WithScanIgnore(ignore *IgnoreList) ScanOption {
	return func(s *Scanner) {
		s.ignore = ignore
	}
}

func NewScanner(root string, opts ...ScanOption) *Scanner {
	s := &Scanner{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns a lazy sequence of entries below the root. An unreadable root
// yields a single error; unreadable entries below it are skipped.
func (s *Scanner) Scan() iter.Seq2[ScanEntry, error] {
	return func(yield func(ScanEntry, error) bool) {
		info, err := os.Stat(s.root)
		if err != nil {
			yield(ScanEntry{}, fmt.Errorf("scan root %s: %w", s.root, err))
			return
		}
		if !info.IsDir() {
			yield(ScanEntry{}, fmt.Errorf("scan root %s: %w", s.root, ErrRootNotDir))
			return
		}

		entries, err := os.ReadDir(s.root)
		if err != nil {
			yield(ScanEntry{}, fmt.Errorf("scan root %s: %w", s.root, err))
			return
		}

		ancestors := mapset.NewThreadUnsafeSet[string]()
		if real, err := filepath.EvalSymlinks(s.root); err == nil {
			ancestors.Add(real)
		}

		s.walkEntries(s.root, "", entries, ancestors, yield)
	}
}

func (s *Scanner) walkDir(absDir, relDir string, ancestors mapset.Set[string], yield func(ScanEntry, error) bool) bool {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		slog.Debug("scan skip unreadable dir", "path", relDir, "error", err)
		if len(entries) == 0 {
			return true
		}
	}
	return s.walkEntries(absDir, relDir, entries, ancestors, yield)
}

// walkEntries descends into directories depth first. ancestors holds the
// resolved paths of the directories on the current branch.
func (s *Scanner) walkEntries(absDir, relDir string, entries []os.DirEntry, ancestors mapset.Set[string], yield func(ScanEntry, error) bool) bool {
	for _, d := range entries {
		absPath := filepath.Join(absDir, d.Name())
		relPath := path.Join(relDir, d.Name())

		// os.Stat follows symlinks
		info, err := os.Stat(absPath)
		if err != nil {
			slog.Debug("scan skip unreadable entry", "path", relPath, "error", err)
			continue
		}

		if info.IsDir() {
			if s.ignore.ShouldIgnore(relPath, true) {
				continue
			}
			real, err := filepath.EvalSymlinks(absPath)
			if err != nil {
				slog.Debug("scan skip unresolvable dir", "path", relPath, "error", err)
				continue
			}
			if ancestors.Contains(real) {
				slog.Debug("scan skip symlink cycle", "path", relPath, "target", real)
				continue
			}

			if !yield(ScanEntry{Path: relPath, AbsPath: absPath, IsDir: true, ModTime: info.ModTime()}, nil) {
				return false
			}
			ancestors.Add(real)
			ok := s.walkDir(absPath, relPath, ancestors, yield)
			ancestors.Remove(real)
			if !ok {
				return false
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if s.ignore.ShouldIgnore(relPath, false) {
			continue
		}
		if !yield(ScanEntry{Path: relPath, AbsPath: absPath, Size: info.Size(), ModTime: info.ModTime()}, nil) {
			return false
		}
	}
	return true
}
