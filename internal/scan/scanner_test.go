package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func collect(t *testing.T, s *Scanner, root string) []string {
	t.Helper()
	var got []string
	err := s.Walk(context.Background(), root, func(path string) error {
		rel, _ := filepath.Rel(root, path)
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	sort.Strings(got)
	return got
}

func TestWalkFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "b.JPG", "c.nef", "notes.txt", "sub/d.png", "sub/skip.mp4")

	s := New(&Config{})
	got := collect(t, s, root)

	want := []string{"a.jpg", "b.JPG", "c.nef", filepath.Join("sub", "d.png")}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestWalkAdditionalExtensions(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "clip.mp4", "a.jpg")

	s := New(&Config{AdditionalExts: []string{"mp4"}})
	got := collect(t, s, root)
	if len(got) != 2 {
		t.Fatalf("expected mp4 included, got %v", got)
	}
}

func TestWalkExcludesOrganizedSubtree(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "incoming.jpg", "library/5/Red/done.jpg")

	s := New(&Config{ExcludeDir: filepath.Join(root, "library")})
	got := collect(t, s, root)
	if len(got) != 1 || got[0] != "incoming.jpg" {
		t.Fatalf("expected only incoming.jpg, got %v", got)
	}
}

func TestWalkCancellation(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "b.jpg", "c.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	err := New(&Config{}).Walk(ctx, root, func(path string) error {
		seen++
		cancel()
		return nil
	})
	if err == nil {
		t.Fatal("expected context error after cancellation")
	}
	if seen != 1 {
		t.Errorf("expected walk to stop after cancellation, saw %d files", seen)
	}
}
