package delta

import (
	"bufio"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/deltasync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	// IgnoreFileName is the gitignore-style rules file read from the sync root.
	IgnoreFileName = ".deltaignore"
	// MetadataDirName holds the state database and lock of a sync root.
	MetadataDirName = ".deltasync"
)

var defaultIgnoreLines = []string{
	MetadataDirName + "/",
	IgnoreFileName,
	"*.deltasync.tmp.*",
}

// IgnoreList decides which relative paths are excluded from a sync root.
// It combines gitignore rules (built-in defaults plus the root's .deltaignore
// file) with glob patterns from configuration.
//
// An IgnoreList is safe for concurrent use.
type IgnoreList struct {
	baseDir  string
	patterns []string

	mu     sync.RWMutex
	ignore *gitignore.GitIgnore
}

// NewIgnoreList creates an ignore list for baseDir. patterns are doublestar
// globs: a pattern without a slash matches the base name at any depth, a
// pattern with a slash matches the full relative path.
func NewIgnoreList(baseDir string, patterns ...string) *IgnoreList {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			slog.Warn("invalid ignore pattern", "pattern", p)
			continue
		}
		valid = append(valid, p)
	}
	s := &IgnoreList{baseDir: baseDir, patterns: valid}
	s.Load()
	return s
}

// Load compiles the default rules and the root's .deltaignore file, if any.
// NewIgnoreList loads once; call Load again to pick up an edited file.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	compiled := gitignore.CompileIgnoreLines(ignoreLines...)
	s.mu.Lock()
	s.ignore = compiled
	s.mu.Unlock()
}

// ShouldIgnore reports whether the slash-separated relative path is excluded.
func (s *IgnoreList) ShouldIgnore(relPath string, isDir bool) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	rules := s.ignore
	s.mu.RUnlock()

	candidate := relPath
	if isDir {
		candidate += "/"
	}
	if rules.MatchesPath(candidate) {
		return true
	}

	base := path.Base(relPath)
	for _, p := range s.patterns {
		target := relPath
		if !strings.Contains(p, "/") {
			target = base
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
		// "dir/**" also excludes the directory entry itself
		if isDir && strings.HasSuffix(p, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), relPath); ok {
				return true
			}
		}
	}
	return false
}
