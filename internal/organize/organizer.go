// Package organize drives the per-file pipeline: cache pre-check, metadata
// acquisition, target resolution through the mapping rules, and placement.
package organize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/stefanw/photosort/internal/cache"
	"github.com/stefanw/photosort/internal/exif"
	"github.com/stefanw/photosort/internal/manifest"
	"github.com/stefanw/photosort/internal/mapping"
	"github.com/stefanw/photosort/internal/report"
	"github.com/stefanw/photosort/internal/scan"
	"github.com/stefanw/photosort/internal/util"
)

// Config holds organizer configuration
type Config struct {
	Sources         []string
	Target          string // empty: each source directory is its own target root
	Copy            bool   // copy instead of move
	DryRun          bool
	Overwrite       bool
	MinRating       int
	SkipMode        cache.SkipMode
	RemoveEmptyDirs bool // prune the immediate source directory after a move
}

// Organizer wires the scanner, cache, metadata reader and mapping rules
// into the sequential processing loop.
type Organizer struct {
	cfg      Config
	scanner  *scan.Scanner
	cache    *cache.Store
	reader   exif.Reader
	rules    []mapping.Rule
	logger   *report.EventLogger
	manifest *manifest.Manifest // nil when disabled
}

// New creates an Organizer. manifest may be nil.
func New(cfg Config, scanner *scan.Scanner, store *cache.Store, reader exif.Reader,
	rules []mapping.Rule, logger *report.EventLogger, m *manifest.Manifest) *Organizer {
	if logger == nil {
		logger = report.NullLogger()
	}
	return &Organizer{
		cfg:      cfg,
		scanner:  scanner,
		cache:    store,
		reader:   reader,
		rules:    rules,
		logger:   logger,
		manifest: m,
	}
}

// Run processes all source directories sequentially. Cancellation of ctx is
// observed at the top of the per-directory and per-file loops; the cache is
// flushed before returning util.ErrInterrupted so completed work survives.
// The returned summary is valid (partial) even on error.
func (o *Organizer) Run(ctx context.Context) (*report.Summary, error) {
	summary := report.NewSummary(o.cfg.DryRun)

	if len(o.cfg.Sources) == 0 {
		return summary, fmt.Errorf("%w: no source directories given", util.ErrInvalidConfig)
	}
	if o.cfg.Target != "" && !o.cfg.DryRun {
		if err := os.MkdirAll(o.cfg.Target, 0755); err != nil {
			return summary, fmt.Errorf("%w: cannot create target directory %s: %v",
				util.ErrInvalidConfig, o.cfg.Target, err)
		}
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet() && !util.IsVerbose() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Organizing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for _, src := range o.cfg.Sources {
		select {
		case <-ctx.Done():
			o.flushCache()
			return summary, util.ErrInterrupted
		default:
		}

		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			return summary, fmt.Errorf("%w: source is not a directory: %s", util.ErrInvalidConfig, src)
		}

		targetRoot := o.cfg.Target
		if targetRoot == "" {
			targetRoot = src
		}

		util.InfoLog("Processing %s -> %s", src, targetRoot)
		err = o.scanner.Walk(ctx, src, func(path string) error {
			o.processFile(path, src, targetRoot, summary)
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
		if err != nil {
			o.flushCache()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, util.ErrInterrupted
			}
			return summary, fmt.Errorf("walking %s: %w", src, err)
		}

		// Persist per directory so an interruption late in a long run
		// keeps the earlier directories' work
		o.flushCache()
	}

	o.flushCache()
	return summary, nil
}

func (o *Organizer) flushCache() {
	if err := o.cache.Save(); err != nil {
		util.WarnLog("cache not persisted: %v", err)
	}
}

// processFile runs one file through the placement state machine. Every path
// through here ends in exactly one terminal outcome on the summary; per-file
// failures never abort the run.
func (o *Organizer) processFile(path, srcRoot, targetRoot string, summary *report.Summary) {
	// 1. Cache pre-check
	if o.cache.ShouldSkip(path, o.cfg.SkipMode) {
		util.DebugLog("cache skip: %s", path)
		o.logger.LogSkip(path, string(report.OutcomeSkippedCached))
		summary.Add(report.OutcomeSkippedCached)
		return
	}

	// 2. Metadata: cache-confirmed EXIF first, external reader otherwise.
	// Rating and label are read independently; only both failing makes the
	// file unreadable.
	rating, label, ok := o.cache.ConfirmedRatingLabel(path)
	if !ok {
		var rerr, lerr error
		rating, rerr = o.reader.Rating(path)
		label, lerr = o.reader.Label(path)
		if rerr != nil && lerr != nil {
			util.WarnLog("cannot read metadata of %s: %v", path, rerr)
			o.logger.LogError(path, rerr)
			summary.Add(report.OutcomeUnreadable)
			return
		}
		if rerr != nil {
			util.DebugLog("rating read failed for %s, using default: %v", path, rerr)
		}
		if lerr != nil {
			util.DebugLog("label read failed for %s, using default: %v", path, lerr)
		}
	}

	// 3. Rating threshold
	if rating < o.cfg.MinRating {
		util.DebugLog("below minimum rating (%d < %d): %s", rating, o.cfg.MinRating, path)
		o.logger.LogSkip(path, string(report.OutcomeSkippedMinRating))
		summary.Add(report.OutcomeSkippedMinRating)
		return
	}

	// 4. Target resolution through the mapping rules
	segment := mapping.Apply(fmt.Sprintf("%d/%s", rating, label), o.rules)
	dest := filepath.Join(targetRoot, segment, filepath.Base(path))

	srcAbs, err := filepath.Abs(path)
	if err != nil {
		srcAbs = filepath.Clean(path)
	}
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		destAbs = filepath.Clean(dest)
	}

	// 5. Already in place: still remember, so a reorganized tree seeds the
	// cache for later runs
	if srcAbs == destAbs {
		if err := o.cache.Remember(path, rating, label); err != nil {
			util.WarnLog("cannot cache %s: %v", path, err)
		}
		o.logger.LogSkip(path, string(report.OutcomeSkippedAtTarget))
		summary.Add(report.OutcomeSkippedAtTarget)
		return
	}

	// 6. Collision
	if _, err := os.Stat(destAbs); err == nil && !o.cfg.Overwrite {
		util.DebugLog("target exists, not overwriting: %s", destAbs)
		o.logger.LogSkip(path, string(report.OutcomeSkippedExists))
		summary.Add(report.OutcomeSkippedExists)
		return
	}

	action, outcome := "move", report.OutcomeMoved
	if o.cfg.Copy {
		action, outcome = "copy", report.OutcomeCopied
	}

	// 7. Execute (or narrate, under dry-run)
	if o.cfg.DryRun {
		util.InfoLog("would %s %s -> %s", action, path, destAbs)
		if o.cfg.RemoveEmptyDirs && !o.cfg.Copy && wouldBeEmpty(filepath.Dir(srcAbs), srcAbs) {
			util.InfoLog("would remove empty directory %s", filepath.Dir(srcAbs))
		}
		o.logger.LogPlace(action, path, destAbs, rating, label)
		summary.Add(outcome)
		return
	}

	if err := o.place(srcAbs, destAbs); err != nil {
		util.ErrorLog("cannot %s %s -> %s: %v", action, path, destAbs, err)
		o.logger.LogError(path, err)
		summary.Add(report.OutcomeUnreadable)
		return
	}

	// The bytes did not change, so any digest computed for the source
	// during lookup is still valid for the destination
	o.cache.Hasher().Rebind(srcAbs, destAbs)
	if err := o.cache.Remember(destAbs, rating, label); err != nil {
		util.WarnLog("cannot cache %s: %v", destAbs, err)
	}
	if o.manifest != nil {
		if err := o.manifest.RecordPlacement(srcAbs, destAbs, action, rating, label); err != nil {
			util.WarnLog("manifest: %v", err)
		}
	}
	o.logger.LogPlace(action, path, destAbs, rating, label)
	util.DebugLog("%sd %s -> %s", action, path, destAbs)
	summary.Add(outcome)

	// 8. Optional single-level prune of the now-possibly-empty source dir
	if o.cfg.RemoveEmptyDirs && !o.cfg.Copy {
		o.pruneDir(filepath.Dir(srcAbs), srcRoot)
	}
}

// pruneDir removes dir if it is empty; never the source root itself, never
// recursively. Failure is a warning, not an abort.
func (o *Organizer) pruneDir(dir, srcRoot string) {
	rootAbs, err := filepath.Abs(srcRoot)
	if err == nil && dir == rootAbs {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		util.WarnLog("cannot inspect directory %s: %v", dir, err)
		return
	}
	if len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		util.WarnLog("cannot remove empty directory %s: %v", dir, err)
		return
	}
	util.DebugLog("removed empty directory %s", dir)
}

// wouldBeEmpty reports whether dir holds nothing but the file about to leave it
func wouldBeEmpty(dir, leaving string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) == 1 && filepath.Join(dir, entries[0].Name()) == leaving
}
