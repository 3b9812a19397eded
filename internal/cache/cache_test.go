package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stefanw/photosort/internal/util"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newStore(t *testing.T, strategy Strategy) *Store {
	t.Helper()
	return New(&Config{
		Enabled:  true,
		Path:     filepath.Join(t.TempDir(), "cache.gz"),
		Strategy: strategy,
		Hasher:   util.NewHasher(util.HashSHA256),
	})
}

func TestLookupByPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "content-a")

	s := newStore(t, Strategy{})
	if err := s.Remember(file, 4, "Red"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	rec, kind := s.Lookup(file)
	if rec == nil || kind != MatchPath {
		t.Fatalf("expected path match, got %v", kind)
	}
	if rec.Rating != 4 || rec.Label != "Red" {
		t.Errorf("wrong record: rating=%d label=%q", rec.Rating, rec.Label)
	}
	if s.Stats().HitsPath != 1 {
		t.Errorf("expected 1 path hit, got %d", s.Stats().HitsPath)
	}
}

func TestLookupByHashAfterMove(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "old", "a.jpg")
	writeFile(t, orig, "same-bytes")

	s := newStore(t, Strategy{UseHash: true})
	if err := s.Remember(orig, 3, "Blue"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	// Relocate the file: path index misses, hash index finds it
	moved := filepath.Join(dir, "new", "b.jpg")
	writeFile(t, moved, "same-bytes")
	os.Remove(orig)
	s.Hasher().Forget()

	rec, kind := s.Lookup(moved)
	if rec == nil || kind != MatchHash {
		t.Fatalf("expected hash match, got %v", kind)
	}
	if s.Stats().HitsHash != 1 {
		t.Errorf("expected 1 hash hit, got %d", s.Stats().HitsHash)
	}
}

func TestLookupByRelPath(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "tree1", "2024", "trip", "a.jpg")
	writeFile(t, orig, "bytes-v1")

	s := newStore(t, Strategy{UseRelPath: true})
	if err := s.Remember(orig, 5, "Purple"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	// Whole-tree relocation keeps the trailing segments
	moved := filepath.Join(dir, "tree2", "2024", "trip", "a.jpg")
	writeFile(t, moved, "bytes-v1")

	rec, kind := s.Lookup(moved)
	if rec == nil || kind != MatchRelPath {
		t.Fatalf("expected relpath match, got %v", kind)
	}
	if rec.RelPath != "2024/trip/a.jpg" {
		t.Errorf("unexpected relpath key %q", rec.RelPath)
	}
}

func TestLookupMiss(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "unseen")

	s := newStore(t, Strategy{UseHash: true, UseRelPath: true})
	rec, kind := s.Lookup(file)
	if rec != nil || kind != MatchNone {
		t.Fatalf("expected miss, got %v", kind)
	}
	if s.Stats().Misses != 1 {
		t.Errorf("expected 1 miss, got %d", s.Stats().Misses)
	}
}

func TestShouldSkipVerify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "stable")

	s := newStore(t, Strategy{})
	if err := s.Remember(file, 2, "None"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	if !s.ShouldSkip(file, SkipVerify) {
		t.Error("unchanged file should skip in verify mode")
	}
	if s.ShouldSkip(file, SkipOff) {
		t.Error("SkipOff must never skip")
	}
}

func TestShouldSkipVerifyRejectsChangedContent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "version-1")

	s := newStore(t, Strategy{})
	if err := s.Remember(file, 2, "None"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	mtime, err := util.FileMtime(file)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	// Change the bytes but pin the mtime: confirmation must compare the
	// hash too, not mtime alone
	writeFile(t, file, "version-2")
	old := time.Unix(mtime, 0)
	if err := os.Chtimes(file, old, old); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	// Fresh store, as a later run would see it
	s2 := New(&Config{
		Enabled: true,
		Path:    s.path,
		Hasher:  util.NewHasher(util.HashSHA256),
	})
	if err := s2.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s2.ShouldSkip(file, SkipVerify) {
		t.Error("changed content with equal mtime must not skip in verify mode")
	}
}

func TestShouldSkipBlind(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "x", "y", "a.jpg")
	writeFile(t, orig, "old-bytes")

	s := newStore(t, Strategy{UseRelPath: true})
	if err := s.Remember(orig, 1, "None"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	// A different file sharing the relative path: blind mode trusts the
	// stale hit anyway, that is the documented trade
	other := filepath.Join(t.TempDir(), "x", "y", "a.jpg")
	writeFile(t, other, "completely different")

	if !s.ShouldSkip(other, SkipBlind) {
		t.Error("blind mode should skip on any index hit")
	}
	if s.ShouldSkip(other, SkipVerify) {
		t.Error("verify mode must reject the same stale hit")
	}
}

func TestConfirmedRatingLabel(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "stable")

	s := newStore(t, Strategy{})
	if err := s.Remember(file, 4, "Red"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}

	rating, label, ok := s.ConfirmedRatingLabel(file)
	if !ok || rating != 4 || label != "Red" {
		t.Fatalf("expected confirmed (4, Red), got (%d, %q, %v)", rating, label, ok)
	}

	// Legacy record without EXIF fields is a miss
	s.insert(&Record{Path: file + "2", Hash: "abc", Mtime: 1})
	writeFile(t, file+"2", "x")
	if _, _, ok := s.ConfirmedRatingLabel(file + "2"); ok {
		t.Error("legacy record must not yield cached EXIF")
	}
}

func TestRememberDryRunIsNoOp(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "content")

	s := New(&Config{
		Enabled: true,
		DryRun:  true,
		Path:    filepath.Join(dir, "cache.gz"),
		Hasher:  util.NewHasher(util.HashSHA256),
	})
	if err := s.Remember(file, 5, "Purple"); err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if s.Len() != 0 {
		t.Error("dry-run remember must not mutate the store")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache.gz")); !os.IsNotExist(err) {
		t.Error("dry-run save must not write the cache file")
	}
}

func TestDisabledStore(t *testing.T) {
	s := New(&Config{Enabled: false})
	if rec, kind := s.Lookup("/anywhere"); rec != nil || kind != MatchNone {
		t.Error("disabled store must miss")
	}
	if s.ShouldSkip("/anywhere", SkipBlind) {
		t.Error("disabled store must never skip")
	}
	if err := s.Remember("/anywhere", 1, "x"); err != nil {
		t.Errorf("disabled remember should be a silent no-op: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Errorf("disabled save should succeed: %v", err)
	}
}

func TestSecondaryCollisionsCountedNotMerged(t *testing.T) {
	s := newStore(t, Strategy{UseHash: true, UseRelPath: true})

	a := &Record{Path: "/t1/x/a.jpg", Hash: "deadbeef", Mtime: 1, RelPath: "x/a.jpg"}
	b := &Record{Path: "/t2/x/a.jpg", Hash: "deadbeef", Mtime: 2, RelPath: "x/a.jpg"}
	s.insert(a)
	s.insert(b)

	if s.Stats().HashCollisions != 1 {
		t.Errorf("expected 1 hash collision, got %d", s.Stats().HashCollisions)
	}
	if s.Stats().RelPathCollisions != 1 {
		t.Errorf("expected 1 relpath collision, got %d", s.Stats().RelPathCollisions)
	}

	// Both remain independently reachable through the primary index
	if s.byPath[a.Path] != a || s.byPath[b.Path] != b {
		t.Error("collision must not displace primary-index records")
	}
	// First writer keeps the secondary slots
	if s.byHash["deadbeef"] != a || s.byRel["x/a.jpg"] != a {
		t.Error("secondary indices must keep the first writer")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{"", Strategy{}, false},
		{"path", Strategy{}, false},
		{"path-hash", Strategy{UseHash: true}, false},
		{"path-relpath", Strategy{UseRelPath: true}, false},
		{"path-hash-relpath", Strategy{UseHash: true, UseRelPath: true}, false},
		{"all", Strategy{UseHash: true, UseRelPath: true}, false},
		{"bogus", Strategy{}, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParseStrategy(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %+v, expected %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseSkipMode(t *testing.T) {
	if mode, err := ParseSkipMode(""); err != nil || mode != SkipOff {
		t.Errorf("empty mode should be off, got %v, %v", mode, err)
	}
	if mode, err := ParseSkipMode("blind"); err != nil || mode != SkipBlind {
		t.Errorf("expected blind, got %v, %v", mode, err)
	}
	if _, err := ParseSkipMode("yolo"); err == nil {
		t.Error("expected error for unknown skip mode")
	}
}
