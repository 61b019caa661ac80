package delta

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_Defaults(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir())

	assert.True(t, ignore.ShouldIgnore(MetadataDirName, true))
	assert.True(t, ignore.ShouldIgnore(MetadataDirName+"/state.db", false))
	assert.True(t, ignore.ShouldIgnore(IgnoreFileName, false))
	assert.True(t, ignore.ShouldIgnore("docs/report.pdf.deltasync.tmp.123", false))
	assert.False(t, ignore.ShouldIgnore("docs/report.pdf", false))
}

func TestIgnoreList_Globs(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir(),
		"*.tmp", "*.temp", "~*", ".DS_Store", "Thumbs.db",
		".git/**", "node_modules/**", "__pycache__/**",
	)

	tests := []struct {
		path   string
		isDir  bool
		ignore bool
	}{
		{"notes.tmp", false, true},
		{"deep/nested/cache.temp", false, true},
		{"~lockfile.docx", false, true},
		{"photos/.DS_Store", false, true},
		{"Thumbs.db", false, true},
		{".git", true, true},
		{".git/HEAD", false, true},
		{"node_modules", true, true},
		{"node_modules/left-pad/index.js", false, true},
		{"__pycache__/mod.pyc", false, true},
		{"src/main.go", false, false},
		{"docs", true, false},
		{"notes.tmp.bak", false, false},
		{"nested/node_modules/x.js", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignore, ignore.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestIgnoreList_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	content := "# build output\nbuild/\n\n*.log\n!keep.log\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte(content), 0o644))

	ignore := NewIgnoreList(root)

	assert.True(t, ignore.ShouldIgnore("build", true))
	assert.True(t, ignore.ShouldIgnore("build/out.bin", false))
	assert.True(t, ignore.ShouldIgnore("debug.log", false))
	assert.False(t, ignore.ShouldIgnore("keep.log", false))
	assert.False(t, ignore.ShouldIgnore("# build output", false))
}

func TestIgnoreList_LoadPicksUpEdits(t *testing.T) {
	root := t.TempDir()
	ignore := NewIgnoreList(root)
	assert.False(t, ignore.ShouldIgnore("notes.bak", false))

	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.bak\n"), 0o644))
	assert.False(t, ignore.ShouldIgnore("notes.bak", false))

	ignore.Load()
	assert.True(t, ignore.ShouldIgnore("notes.bak", false))
}

func TestIgnoreList_ConcurrentUse(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.log\n"), 0o644))
	ignore := NewIgnoreList(root, "*.tmp")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.True(t, ignore.ShouldIgnore("a.log", false))
				assert.True(t, ignore.ShouldIgnore("b.tmp", false))
				assert.False(t, ignore.ShouldIgnore("c.txt", false))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			ignore.Load()
		}
	}()
	wg.Wait()
}

func TestIgnoreList_InvalidPatternDropped(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir(), "[", "*.bak")

	assert.Equal(t, []string{"*.bak"}, ignore.patterns)
	assert.True(t, ignore.ShouldIgnore("x.bak", false))
}

func TestIgnoreList_NilIsPermissive(t *testing.T) {
	var ignore *IgnoreList
	assert.False(t, ignore.ShouldIgnore("anything", false))
}
