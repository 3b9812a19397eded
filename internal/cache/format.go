package cache

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/stefanw/photosort/internal/util"
)

// On-disk format: gzip-compressed, newline-delimited, tab-separated records
// in field order path, hash, mtime, rating, label, relpath. Lines beginning
// with '#' and blank lines are ignored. Records missing hash or mtime are
// corrupt and dropped. Older five-field files without relpath are upgraded
// in memory on load.

const fieldCount = 6

// Load reads and decompresses the cache file, building the indices the
// configured strategy needs. A missing file is an empty store, not an error.
func (s *Store) Load() error {
	if !s.enabled || s.path == "" {
		return nil
	}

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		util.DebugLog("cache: no cache file at %s, starting empty", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot stat cache file: %w", err)
	}

	s.stats.SizeOnLoad = info.Size()
	if info.Size() > SizeWarnBytes {
		util.WarnLog("cache file %s is %s compressed, loading may take a while",
			s.path, humanize.IBytes(uint64(info.Size())))
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("cannot open cache file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("cannot decompress cache file: %w", err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, legacy, err := parseRecord(line, s.relDepth)
		if err != nil {
			s.stats.CorruptDropped++
			util.WarnLog("cache: dropping corrupt record at line %d: %v", lineNo, err)
			continue
		}
		if legacy {
			s.stats.LegacyUpgraded++
		}
		s.insert(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading cache file: %w", err)
	}

	s.stats.RecordsLoaded = len(s.byPath)
	util.DebugLog("cache: loaded %d records from %s", len(s.byPath), s.path)
	return nil
}

// parseRecord parses one TSV line. Returns legacy=true when the line came
// from an older format (fewer than six fields).
func parseRecord(line string, relDepth int) (*Record, bool, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return nil, false, fmt.Errorf("%d fields, need at least path/hash/mtime", len(fields))
	}

	path := fields[0]
	hash := fields[1]
	if path == "" {
		return nil, false, fmt.Errorf("empty path")
	}
	if hash == "" {
		return nil, false, fmt.Errorf("missing content hash")
	}
	mtime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("bad mtime %q", fields[2])
	}

	rec := &Record{
		Path:  path,
		Hash:  hash,
		Mtime: mtime,
	}

	if len(fields) > 3 && fields[3] != "" {
		rating, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, false, fmt.Errorf("bad rating %q", fields[3])
		}
		rec.Rating = rating
		rec.HasEXIF = true
	}
	if len(fields) > 4 {
		rec.Label = fields[4]
	}

	legacy := len(fields) < fieldCount
	if len(fields) > 5 && fields[5] != "" {
		rec.RelPath = fields[5]
	} else {
		rec.RelPath = util.RelPathKey(path, relDepth)
	}

	return rec, legacy, nil
}

// Save serializes the primary index sorted by path, compresses it, and
// atomically replaces the on-disk file. A no-op under dry-run or when
// caching is disabled. Idempotent: saving an unchanged store is harmless.
func (s *Store) Save() error {
	if !s.enabled || s.dryRun || s.path == "" {
		return nil
	}

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cannot create temp cache file: %w", err)
	}

	gz := gzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, p := range paths {
		rec := s.byPath[p]
		rating := ""
		if rec.HasEXIF {
			rating = strconv.Itoa(rec.Rating)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.Path, rec.Hash, rec.Mtime, rating, rec.Label, rec.RelPath)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache write failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache compression failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache write failed: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot replace cache file: %w", err)
	}

	s.stats.RecordsSaved = len(paths)
	if info, err := os.Stat(s.path); err == nil {
		s.stats.SizeOnSave = info.Size()
	}
	s.dirty = false

	util.DebugLog("cache: saved %d records to %s", len(paths), s.path)
	return nil
}
