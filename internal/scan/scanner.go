// Package scan discovers candidate media files under the source directories.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/stefanw/photosort/internal/util"
)

// ImageExtensions are the default supported photo file extensions
var ImageExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".gif",
	".tif",
	".tiff",
	".webp",
	".heic",
	".dng", // Adobe Digital Negative
	".arw", // Sony RAW
	".cr2", // Canon RAW
	".nef", // Nikon RAW
	".raf", // Fujifilm RAW
}

// Scanner walks a directory tree yielding media files one at a time, in a
// deterministic order. Processing is strictly sequential, so there is no
// worker pool here: the walk itself is the iterator.
type Scanner struct {
	extensions map[string]bool
	excludeDir string
}

// Config holds scanner configuration
type Config struct {
	// Extensions replaces the default extension filter when non-empty
	Extensions []string
	// AdditionalExts extends the filter without replacing it
	AdditionalExts []string
	// ExcludeDir is a subtree to skip entirely, typically the target root
	// when it lives inside a source directory and re-discovery of already
	// organized files is not wanted
	ExcludeDir string
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	base := cfg.Extensions
	if len(base) == 0 {
		base = ImageExtensions
	}

	extMap := make(map[string]bool)
	for _, ext := range base {
		extMap[normalizeExt(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		extMap[normalizeExt(ext)] = true
	}

	excludeDir := cfg.ExcludeDir
	if excludeDir != "" {
		if abs, err := filepath.Abs(excludeDir); err == nil {
			excludeDir = abs
		}
	}

	return &Scanner{
		extensions: extMap,
		excludeDir: excludeDir,
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// IsMediaFile checks if a file has a supported extension
func (s *Scanner) IsMediaFile(path string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

// Walk yields every matching file under root to fn. Walk stops early when
// ctx is cancelled or fn returns an error; access errors on individual
// entries are warned about and do not stop the walk.
func (s *Scanner) Walk(ctx context.Context, root string, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			util.WarnLog("cannot access %s: %v", path, err)
			return nil
		}

		if d.IsDir() {
			if s.excludeDir != "" {
				if abs, aerr := filepath.Abs(path); aerr == nil && abs == s.excludeDir {
					util.DebugLog("scan: skipping organized subtree %s", path)
					return fs.SkipDir
				}
			}
			return nil
		}

		if !s.IsMediaFile(path) {
			return nil
		}

		if err := fn(path); err != nil {
			return fmt.Errorf("processing %s: %w", path, err)
		}
		return nil
	})
}
