// Package cache persists file identity and EXIF metadata between runs so that
// unchanged files are neither re-hashed nor re-read on subsequent passes over
// a large photo library.
package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/stefanw/photosort/internal/util"
)

const (
	// SizeWarnBytes is the compressed cache size above which loading warns
	SizeWarnBytes = 50 * 1024 * 1024

	// DefaultRelDepth is the number of parent directory segments kept in
	// the relative-path index key
	DefaultRelDepth = 2
)

// Record is one cached entry per previously processed file
type Record struct {
	Path    string // absolute path at time of last processing (primary key)
	Hash    string // lower-hex content digest
	Mtime   int64  // filesystem mtime, integer seconds
	Rating  int
	Label   string
	RelPath string // last N segments + filename, collision-prone secondary key
	HasEXIF bool   // false for legacy records that carry no rating/label
}

// Strategy selects which secondary lookup indices are built and probed.
// The absolute-path index is always first; hash is probed before relpath.
type Strategy struct {
	UseHash    bool
	UseRelPath bool
}

// ParseStrategy parses a lookup strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "path":
		return Strategy{}, nil
	case "path-hash":
		return Strategy{UseHash: true}, nil
	case "path-relpath":
		return Strategy{UseRelPath: true}, nil
	case "path-hash-relpath", "all":
		return Strategy{UseHash: true, UseRelPath: true}, nil
	}
	return Strategy{}, fmt.Errorf("%w: unknown cache strategy %q", util.ErrInvalidConfig, s)
}

// SkipMode controls how a cache hit translates into skipping a file
type SkipMode int

const (
	// SkipOff disables the cache pre-check entirely
	SkipOff SkipMode = iota
	// SkipVerify skips only after confirming mtime and content hash
	SkipVerify
	// SkipBlind trusts any index hit without re-verifying the file.
	// Unsafe unless the tree is append-only; a replaced file sharing a
	// stale relative path would be wrongly skipped.
	SkipBlind
)

// ParseSkipMode parses a skip mode name
func ParseSkipMode(s string) (SkipMode, error) {
	switch strings.ToLower(s) {
	case "", "off":
		return SkipOff, nil
	case "verify":
		return SkipVerify, nil
	case "blind":
		return SkipBlind, nil
	}
	return SkipOff, fmt.Errorf("%w: unknown cache skip mode %q", util.ErrInvalidConfig, s)
}

// MatchKind identifies which index satisfied a lookup
type MatchKind string

const (
	MatchPath    MatchKind = "path"
	MatchHash    MatchKind = "hash"
	MatchRelPath MatchKind = "relpath"
	MatchNone    MatchKind = "none"
)

// Stats holds cache statistics for the run summary
type Stats struct {
	RecordsLoaded     int
	RecordsSaved      int
	SizeOnLoad        int64
	SizeOnSave        int64
	HitsPath          int
	HitsHash          int
	HitsRelPath       int
	Misses            int
	HashCollisions    int
	RelPathCollisions int
	CorruptDropped    int
	LegacyUpgraded    int
}

// Store is the in-memory cache with its lookup indices.
// Lifecycle is one tool invocation: load once, mutate, flush.
type Store struct {
	enabled  bool
	dryRun   bool
	path     string
	strategy Strategy
	relDepth int
	hasher   *util.Hasher

	byPath map[string]*Record
	byHash map[string]*Record
	byRel  map[string]*Record

	stats Stats
	dirty bool
}

// Config holds cache store configuration
type Config struct {
	Enabled  bool
	DryRun   bool
	Path     string // on-disk cache file (gzip TSV)
	Strategy Strategy
	RelDepth int // parent segments in the relpath key (0 = default)
	Hasher   *util.Hasher
}

// New creates a Store. Call Load before first use.
func New(cfg *Config) *Store {
	relDepth := cfg.RelDepth
	if relDepth <= 0 {
		relDepth = DefaultRelDepth
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = util.NewHasher(util.HashSHA256)
	}
	return &Store{
		enabled:  cfg.Enabled,
		dryRun:   cfg.DryRun,
		path:     cfg.Path,
		strategy: cfg.Strategy,
		relDepth: relDepth,
		hasher:   hasher,
		byPath:   make(map[string]*Record),
		byHash:   make(map[string]*Record),
		byRel:    make(map[string]*Record),
	}
}

// Enabled reports whether caching is active
func (s *Store) Enabled() bool {
	return s.enabled
}

// Len returns the number of primary-index records
func (s *Store) Len() int {
	return len(s.byPath)
}

// Stats returns the accumulated cache statistics
func (s *Store) Stats() Stats {
	return s.stats
}

// Hasher returns the content hasher shared with the rest of the run
func (s *Store) Hasher() *util.Hasher {
	return s.hasher
}

// insert adds or replaces a record in the primary index and registers it in
// whichever secondary indices the strategy builds. Secondary collisions are
// first-writer-wins and counted, never merged.
func (s *Store) insert(rec *Record) {
	s.byPath[rec.Path] = rec

	if s.strategy.UseHash && rec.Hash != "" {
		if prev, ok := s.byHash[rec.Hash]; ok && prev.Path != rec.Path {
			s.stats.HashCollisions++
		} else {
			s.byHash[rec.Hash] = rec
		}
	}
	if s.strategy.UseRelPath && rec.RelPath != "" {
		if prev, ok := s.byRel[rec.RelPath]; ok && prev.Path != rec.Path {
			s.stats.RelPathCollisions++
		} else {
			s.byRel[rec.RelPath] = rec
		}
	}
}

// Lookup finds a candidate record for path, trying the absolute-path index
// first, then hash and relpath per the configured strategy. The returned
// MatchKind tells which index matched, for statistics. A hit is a candidate
// only: callers must confirm it against the live file unless in blind mode.
func (s *Store) Lookup(path string) (*Record, MatchKind) {
	if !s.enabled {
		return nil, MatchNone
	}

	abs := canonical(path)
	if rec, ok := s.byPath[abs]; ok {
		s.stats.HitsPath++
		return rec, MatchPath
	}

	if s.strategy.UseHash {
		if digest, err := s.hasher.ContentHash(path); err == nil {
			if rec, ok := s.byHash[digest]; ok {
				s.stats.HitsHash++
				return rec, MatchHash
			}
		} else {
			util.DebugLog("cache: cannot hash %s for lookup: %v", path, err)
		}
	}

	if s.strategy.UseRelPath {
		if rec, ok := s.byRel[util.RelPathKey(abs, s.relDepth)]; ok {
			s.stats.HitsRelPath++
			return rec, MatchRelPath
		}
	}

	s.stats.Misses++
	return nil, MatchNone
}

// confirm re-checks a candidate record against the live file. Mtime is the
// cheap pre-check; the content hash is only computed when mtime matches.
// Both must match for the record to be authoritative.
func (s *Store) confirm(path string, rec *Record) bool {
	mtime, err := util.FileMtime(path)
	if err != nil || mtime != rec.Mtime {
		return false
	}
	digest, err := s.hasher.ContentHash(path)
	if err != nil {
		return false
	}
	return digest == rec.Hash
}

// ShouldSkip reports whether path can be skipped entirely based on the cache.
// In blind mode a hit via any index is sufficient; in verify mode the record
// must additionally match the live file's mtime and content hash.
func (s *Store) ShouldSkip(path string, mode SkipMode) bool {
	if !s.enabled || mode == SkipOff {
		return false
	}
	rec, kind := s.Lookup(path)
	if rec == nil {
		return false
	}
	if mode == SkipBlind {
		util.DebugLog("cache: blind skip %s (via %s)", path, kind)
		return true
	}
	return s.confirm(path, rec)
}

// ConfirmedRatingLabel returns the cached rating/label for path after the
// same mtime+hash confirmation as ShouldSkip in verify mode. Legacy records
// without EXIF fields are treated as a miss.
func (s *Store) ConfirmedRatingLabel(path string) (rating int, label string, ok bool) {
	if !s.enabled {
		return 0, "", false
	}
	rec, _ := s.Lookup(path)
	if rec == nil || !rec.HasEXIF {
		return 0, "", false
	}
	if !s.confirm(path, rec) {
		return 0, "", false
	}
	return rec.Rating, rec.Label, true
}

// Remember records the current identity and EXIF of path in the primary
// index, overwriting any previous record for the same path. A no-op under
// dry-run: no file operation occurred, so no state may be persisted.
func (s *Store) Remember(path string, rating int, label string) error {
	if !s.enabled || s.dryRun {
		return nil
	}

	abs := canonical(path)
	digest, err := s.hasher.ContentHash(path)
	if err != nil {
		return fmt.Errorf("cannot hash %s: %w", path, err)
	}
	mtime, err := util.FileMtime(path)
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}

	s.insert(&Record{
		Path:    abs,
		Hash:    digest,
		Mtime:   mtime,
		Rating:  rating,
		Label:   label,
		RelPath: util.RelPathKey(abs, s.relDepth),
		HasEXIF: true,
	})
	s.dirty = true
	return nil
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
