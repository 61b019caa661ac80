package delta

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestFullHash_KnownDigest(t *testing.T) {
	p := writeFile(t, t.TempDir(), "hello.txt", []byte("hello"))

	hash, err := NewHasher().FullHash(p)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
}

func TestFullHash_EmptyFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty", nil)

	hash, err := NewHasher().FullHash(p)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestFullHash_MissingFile(t *testing.T) {
	_, err := NewHasher().FullHash(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHash_PicksStrategyBySize(t *testing.T) {
	dir := t.TempDir()
	h := NewHasher(WithChunkSize(8))

	tests := []struct {
		name  string
		size  int
		quick bool
	}{
		{name: "below chunk", size: 4, quick: false},
		{name: "exactly two chunks", size: 16, quick: false},
		{name: "above two chunks", size: 17, quick: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.name, bytes.Repeat([]byte("x"), tt.size))

			got, err := h.Hash(p)
			require.NoError(t, err)
			assert.Regexp(t, hexDigest, got)

			full, err := h.FullHash(p)
			require.NoError(t, err)
			if tt.quick {
				quick, err := h.QuickHash(p)
				require.NoError(t, err)
				assert.Equal(t, quick, got)
				assert.NotEqual(t, full, got)
			} else {
				assert.Equal(t, full, got)
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	p := writeFile(t, t.TempDir(), "data.bin", bytes.Repeat([]byte("abc"), 100))
	h := NewHasher(WithChunkSize(32))

	first, err := h.Hash(p)
	require.NoError(t, err)
	second, err := h.Hash(p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHash_Directory(t *testing.T) {
	_, err := NewHasher().Hash(t.TempDir())
	assert.Error(t, err)
}

func TestQuickHash_MiddleEditIsInvisible(t *testing.T) {
	dir := t.TempDir()
	h := NewHasher(WithChunkSize(4))

	a := writeFile(t, dir, "a.bin", []byte("HEADxxxxxxxxTAIL"+"!"))
	b := writeFile(t, dir, "b.bin", []byte("HEADyyyyyyyyTAIL"+"!"))

	// 17 bytes > 2*4, so Hash uses QuickHash
	hashA, err := h.Hash(a)
	require.NoError(t, err)
	hashB, err := h.Hash(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)

	fullA, err := h.FullHash(a)
	require.NoError(t, err)
	fullB, err := h.FullHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, fullA, fullB)
}

func TestQuickHash_SizeIsMixedIn(t *testing.T) {
	dir := t.TempDir()
	h := NewHasher(WithChunkSize(4))

	a := writeFile(t, dir, "a.bin", []byte("HEAD"+"xxxxxxxxxx"+"TAIL"))
	b := writeFile(t, dir, "b.bin", []byte("HEAD"+"xxxxxxxxxxxx"+"TAIL"))

	hashA, err := h.QuickHash(a)
	require.NoError(t, err)
	hashB, err := h.QuickHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestQuickHash_TailEditIsVisible(t *testing.T) {
	dir := t.TempDir()
	h := NewHasher(WithChunkSize(4))

	a := writeFile(t, dir, "a.bin", []byte("HEADxxxxxxxxTAIL"))
	b := writeFile(t, dir, "b.bin", []byte("HEADxxxxxxxxTAIX"))

	hashA, err := h.QuickHash(a)
	require.NoError(t, err)
	hashB, err := h.QuickHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestQuickHash_TooSmall(t *testing.T) {
	p := writeFile(t, t.TempDir(), "small", []byte("abc"))

	_, err := NewHasher(WithChunkSize(8)).QuickHash(p)
	assert.Error(t, err)
}

func TestHash_CacheInvalidatedByModTime(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cached.txt", []byte("one"))
	h := NewHasher(WithCache(16))

	first, err := h.Hash(p)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("two"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))

	second, err := h.Hash(p)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	third, err := h.Hash(p)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestHasher_Options(t *testing.T) {
	assert.Equal(t, DefaultChunkSize, NewHasher().ChunkSize())
	assert.Equal(t, DefaultChunkSize, NewHasher(WithChunkSize(0)).ChunkSize())
	assert.Equal(t, int64(64), NewHasher(WithChunkSize(64)).ChunkSize())
	assert.Nil(t, NewHasher(WithCache(0)).cache)
	assert.NotNil(t, NewHasher(WithCache(4)).cache)
}
