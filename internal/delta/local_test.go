package delta

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func byPath(entries []DeltaEntry) map[string]DeltaEntry {
	out := make(map[string]DeltaEntry, len(entries))
	for _, e := range entries {
		out[e.Path] = e
	}
	return out
}

func hashOf(t *testing.T, p string) string {
	t.Helper()
	h, err := NewHasher().Hash(p)
	require.NoError(t, err)
	return h
}

func TestCalculate_FreshRoot(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.txt", []byte("alpha"))
	writeFile(t, root, "sub/b.txt", []byte("beta"))

	calc := NewLocalCalculator(newMemStore(), NewHasher(), WithClock(fixedClock))
	changes, err := calc.Calculate(root)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	got := byPath(changes)
	assert.Equal(t, ActionCreate, got["a.txt"].Action)
	assert.Equal(t, hashOf(t, a), got["a.txt"].Hash)
	assert.Equal(t, int64(5), got["a.txt"].Size)
	assert.False(t, got["a.txt"].IsDir)

	dir := got["sub"]
	assert.Equal(t, ActionCreate, dir.Action)
	assert.True(t, dir.IsDir)
	assert.Empty(t, dir.Hash)
	assert.Equal(t, fixedNow, dir.Modified)

	assert.Equal(t, ActionCreate, got["sub/b.txt"].Action)
}

func TestCalculate_ModifyAndUnchanged(t *testing.T) {
	root := t.TempDir()
	same := writeFile(t, root, "same.txt", []byte("unchanged"))
	writeFile(t, root, "edited.txt", []byte("new content"))

	store := newMemStore(
		&SyncState{LocalPath: "same.txt", LocalHash: hashOf(t, same)},
		&SyncState{LocalPath: "edited.txt", LocalHash: "stale"},
	)

	changes, err := NewLocalCalculator(store, nil).Calculate(root)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "edited.txt", changes[0].Path)
	assert.Equal(t, ActionModify, changes[0].Action)
	assert.Equal(t, int64(len("new content")), changes[0].Size)
}

func TestCalculate_Delete(t *testing.T) {
	root := t.TempDir()
	store := newMemStore(&SyncState{LocalPath: "gone.txt", LocalHash: "h1"})

	changes, err := NewLocalCalculator(store, nil, WithClock(fixedClock)).Calculate(root)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, DeltaEntry{Path: "gone.txt", Action: ActionDelete, Hash: "h1", Modified: fixedNow}, changes[0])
}

func TestCalculate_SymlinkAliasKeepsTrackedFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	x := writeFile(t, root, "data/x.txt", []byte("x"))
	store := newMemStore(
		&SyncState{LocalPath: "data"},
		&SyncState{LocalPath: "data/x.txt", LocalHash: hashOf(t, x)},
	)
	require.NoError(t, os.Symlink(filepath.Join(root, "data"), filepath.Join(root, "alias")))

	changes, err := NewLocalCalculator(store, nil).Calculate(root)
	require.NoError(t, err)

	got := byPath(changes)
	assert.NotContains(t, got, "data")
	assert.NotContains(t, got, "data/x.txt")
	assert.Equal(t, ActionCreate, got["alias"].Action)
	assert.Equal(t, ActionCreate, got["alias/x.txt"].Action)
	for _, c := range changes {
		assert.NotEqual(t, ActionDelete, c.Action, c.Path)
	}
}

func TestCalculate_UnreachedPathOnDiskNotDeleted(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, root, "locked/secret.txt", []byte("s"))
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	store := newMemStore(
		&SyncState{LocalPath: "locked"},
		&SyncState{LocalPath: "locked/secret.txt", LocalHash: "h"},
		&SyncState{LocalPath: "removed.txt", LocalHash: "r"},
	)

	changes, err := NewLocalCalculator(store, nil).Calculate(root)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "removed.txt", changes[0].Path)
	assert.Equal(t, ActionDelete, changes[0].Action)
}

func TestCalculate_TrackedDirectoryIsSilent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "photos"), 0o755))
	store := newMemStore(&SyncState{LocalPath: "photos"})

	changes, err := NewLocalCalculator(store, nil).Calculate(root)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCalculate_IgnoredPathsNeverDeleted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build.tmp", []byte("x"))
	store := newMemStore(&SyncState{LocalPath: "old.tmp", LocalHash: "h"})

	calc := NewLocalCalculator(store, nil, WithIgnore(NewIgnoreList(root, "*.tmp")))
	changes, err := calc.Calculate(root)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCalculate_EveryChangedPathReported(t *testing.T) {
	root := t.TempDir()
	kept := writeFile(t, root, "kept.txt", []byte("k"))
	writeFile(t, root, "changed.txt", []byte("v2"))
	writeFile(t, root, "new.txt", []byte("n"))

	store := newMemStore(
		&SyncState{LocalPath: "kept.txt", LocalHash: hashOf(t, kept)},
		&SyncState{LocalPath: "changed.txt", LocalHash: "v1"},
		&SyncState{LocalPath: "removed.txt", LocalHash: "r"},
	)

	changes, err := NewLocalCalculator(store, nil).Calculate(root)
	require.NoError(t, err)

	got := byPath(changes)
	assert.Len(t, got, len(changes), "no duplicate paths")
	assert.Equal(t, ActionModify, got["changed.txt"].Action)
	assert.Equal(t, ActionCreate, got["new.txt"].Action)
	assert.Equal(t, ActionDelete, got["removed.txt"].Action)
	assert.NotContains(t, got, "kept.txt")
}

func TestCalculate_Errors(t *testing.T) {
	storeErr := errors.New("store down")

	t.Run("missing root", func(t *testing.T) {
		_, err := NewLocalCalculator(newMemStore(), nil).Calculate(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("lookup fails", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", []byte("a"))
		store := newMemStore()
		store.getErr = storeErr

		_, err := NewLocalCalculator(store, nil).Calculate(root)
		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("listing fails", func(t *testing.T) {
		store := newMemStore()
		store.listErr = storeErr

		_, err := NewLocalCalculator(store, nil).Calculate(t.TempDir())
		assert.ErrorIs(t, err, storeErr)
	})
}
