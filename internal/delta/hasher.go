package delta

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultChunkSize is the window size used by QuickHash. Files up to twice this
// size are fully hashed.
const DefaultChunkSize int64 = 1024 * 1024

type cachedHash struct {
	size    int64
	modTime time.Time
	hash    string
}

// Hasher computes content fingerprints for files.
//
// Files no larger than 2×chunk get a SHA-256 of their full content. Larger files
// get a QuickHash that only reads the first and last chunk and mixes in the file
// size. QuickHash cannot see edits that are confined to the middle of a file and
// leave its size unchanged; callers that need exact detection for large files
// must use FullHash directly.
type Hasher struct {
	chunkSize int64
	cache     *lru.Cache[string, cachedHash]
}

type HasherOption func(*Hasher)

// WithChunkSize overrides the QuickHash window size.
func WithChunkSize(n int64) HasherOption {
	return func(h *Hasher) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// WithCache keeps up to n fingerprints keyed by path, reused while a file's size
// and modification time are unchanged.
func WithCache(n int) HasherOption {
	return func(h *Hasher) {
		if n <= 0 {
			return
		}
		cache, err := lru.New[string, cachedHash](n)
		if err != nil {
			slog.Warn("hash cache disabled", "size", n, "error", err)
			return
		}
		h.cache = cache
	}
}

func NewHasher(opts ...HasherOption) *Hasher {
	h := &Hasher{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ChunkSize returns the QuickHash window size.
func (h *Hasher) ChunkSize() int64 {
	return h.chunkSize
}

// Hash fingerprints the file at path, picking FullHash or QuickHash by size.
func (h *Hasher) Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("hash %s: is a directory", path)
	}

	if h.cache != nil {
		if c, ok := h.cache.Get(path); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
			return c.hash, nil
		}
	}

	var hash string
	if info.Size() <= 2*h.chunkSize {
		hash, err = h.FullHash(path)
	} else {
		hash, err = h.QuickHash(path)
	}
	if err != nil {
		return "", err
	}

	if h.cache != nil {
		h.cache.Add(path, cachedHash{size: info.Size(), modTime: info.ModTime(), hash: hash})
	}
	return hash, nil
}

// FullHash returns the hex SHA-256 of the whole file.
func (h *Hasher) FullHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// QuickHash returns the hex SHA-256 of the first chunk, the last chunk and the
// file size as a little-endian uint64. The file must be larger than one chunk.
func (h *Hasher) QuickHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size < h.chunkSize {
		return "", fmt.Errorf("quick hash %s: size %d smaller than chunk %d", path, size, h.chunkSize)
	}

	digest := sha256.New()
	buf := make([]byte, h.chunkSize)

	if _, err := io.ReadFull(file, buf); err != nil {
		return "", fmt.Errorf("read head of %s: %w", path, err)
	}
	digest.Write(buf)

	if _, err := file.ReadAt(buf, size-h.chunkSize); err != nil {
		return "", fmt.Errorf("read tail of %s: %w", path, err)
	}
	digest.Write(buf)

	var sizeBytes [8]byte
	binary.LittleEndian.PutUint64(sizeBytes[:], uint64(size))
	digest.Write(sizeBytes[:])

	return hex.EncodeToString(digest.Sum(nil)), nil
}
