package util

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash"
)

// HashAlgo selects the content hash algorithm
type HashAlgo string

const (
	// HashSHA256 is the default content hash
	HashSHA256 HashAlgo = "sha256"
	// HashXXH64 is a fast non-cryptographic alternative for trusted,
	// append-only archives (same speed-over-safety trade as blind skip mode)
	HashXXH64 HashAlgo = "xxh64"
)

// ParseHashAlgo parses a hash algorithm name
func ParseHashAlgo(s string) (HashAlgo, error) {
	switch strings.ToLower(s) {
	case "", string(HashSHA256):
		return HashSHA256, nil
	case string(HashXXH64):
		return HashXXH64, nil
	}
	return "", fmt.Errorf("%w: unknown hash algorithm %q", ErrInvalidConfig, s)
}

// Hasher computes content hashes, remembering only the single most recently
// hashed path so that consecutive probes against the same file (lookup
// followed by confirmation followed by remember) read it once.
type Hasher struct {
	algo       HashAlgo
	lastPath   string
	lastDigest string
}

// NewHasher creates a Hasher for the given algorithm
func NewHasher(algo HashAlgo) *Hasher {
	if algo == "" {
		algo = HashSHA256
	}
	return &Hasher{algo: algo}
}

// Algo returns the configured hash algorithm
func (h *Hasher) Algo() HashAlgo {
	return h.algo
}

// ContentHash returns the lower-hex content digest of the file at path.
// The immediately preceding result is memoized; any other path invalidates it.
func (h *Hasher) ContentHash(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if abs == h.lastPath && h.lastDigest != "" {
		return h.lastDigest, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var hw hash.Hash
	switch h.algo {
	case HashXXH64:
		hw = xxhash.New()
	default:
		hw = sha256.New()
	}

	if _, err := io.Copy(hw, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	digest := fmt.Sprintf("%x", hw.Sum(nil))
	h.lastPath = abs
	h.lastDigest = digest
	return digest, nil
}

// Forget drops the memoized digest (used after a file is rewritten)
func (h *Hasher) Forget() {
	h.lastPath = ""
	h.lastDigest = ""
}

// Rebind re-keys the memoized digest from oldPath to newPath. Only valid
// (and only applied) when the memo belongs to oldPath and the bytes at
// newPath are known identical, as after a move or copy.
func (h *Hasher) Rebind(oldPath, newPath string) {
	if h.lastDigest == "" {
		return
	}
	oldAbs, err := filepath.Abs(oldPath)
	if err != nil {
		oldAbs = oldPath
	}
	if h.lastPath != oldAbs {
		return
	}
	if abs, err := filepath.Abs(newPath); err == nil {
		h.lastPath = abs
	} else {
		h.lastPath = newPath
	}
}

// FileMtime returns the modification time of path in integer seconds
func FileMtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.ModTime().Unix(), nil
}

// RelPathKey returns the last depth directory segments plus the filename,
// joined with forward slashes. Pure string manipulation, no filesystem I/O.
// A path with fewer segments than depth yields all of them.
func RelPathKey(path string, depth int) string {
	if depth < 0 {
		depth = 0
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	parts := strings.Split(clean, "/")
	// Drop empty leading segment from absolute paths
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	keep := depth + 1 // directories plus filename
	if keep > len(parts) {
		keep = len(parts)
	}
	return strings.Join(parts[len(parts)-keep:], "/")
}
