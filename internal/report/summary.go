// Package report accumulates per-file outcomes and renders the run summary.
package report

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stefanw/photosort/internal/cache"
	"github.com/stefanw/photosort/internal/util"
)

// Outcome is the terminal state of one discovered file
type Outcome string

const (
	OutcomeMoved            Outcome = "moved"
	OutcomeCopied           Outcome = "copied"
	OutcomeSkippedCached    Outcome = "skipped-cached"
	OutcomeSkippedAtTarget  Outcome = "skipped-already-at-target"
	OutcomeSkippedExists    Outcome = "skipped-target-exists"
	OutcomeSkippedMinRating Outcome = "skipped-below-min-rating"
	OutcomeUnreadable       Outcome = "unreadable"
)

// Outcomes lists all terminal outcomes in display order
var Outcomes = []Outcome{
	OutcomeMoved,
	OutcomeCopied,
	OutcomeSkippedCached,
	OutcomeSkippedAtTarget,
	OutcomeSkippedExists,
	OutcomeSkippedMinRating,
	OutcomeUnreadable,
}

// Summary aggregates outcome counters over one run
type Summary struct {
	Counts    map[Outcome]int
	StartedAt time.Time
	DryRun    bool
}

// NewSummary creates an empty Summary
func NewSummary(dryRun bool) *Summary {
	return &Summary{
		Counts:    make(map[Outcome]int),
		StartedAt: time.Now(),
		DryRun:    dryRun,
	}
}

// Add increments the counter for an outcome
func (s *Summary) Add(outcome Outcome) {
	s.Counts[outcome]++
}

// Total returns the number of files that reached any terminal outcome
func (s *Summary) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Print writes the run summary and cache statistics to the log. Partial
// summaries after an interruption go through the same path.
func (s *Summary) Print(cacheStats cache.Stats, cacheEnabled bool) {
	duration := time.Since(s.StartedAt).Round(time.Millisecond)

	header := "=== Run Summary ==="
	if s.DryRun {
		header = "=== Run Summary (dry-run) ==="
	}
	util.SuccessLog(header)
	util.InfoLog("Files processed: %d in %v", s.Total(), duration)
	for _, outcome := range Outcomes {
		if n := s.Counts[outcome]; n > 0 {
			util.InfoLog("  %-28s %d", outcome+":", n)
		}
	}

	if !cacheEnabled {
		return
	}

	util.InfoLog("Cache:")
	util.InfoLog("  records: %d loaded (%s) -> %d saved (%s)",
		cacheStats.RecordsLoaded, humanize.IBytes(uint64(cacheStats.SizeOnLoad)),
		cacheStats.RecordsSaved, humanize.IBytes(uint64(cacheStats.SizeOnSave)))
	util.InfoLog("  hits: %d path, %d hash, %d relpath; misses: %d",
		cacheStats.HitsPath, cacheStats.HitsHash, cacheStats.HitsRelPath, cacheStats.Misses)
	if cacheStats.HashCollisions > 0 || cacheStats.RelPathCollisions > 0 {
		util.WarnLog("  collisions: %d hash, %d relpath",
			cacheStats.HashCollisions, cacheStats.RelPathCollisions)
	}
	if cacheStats.CorruptDropped > 0 {
		util.WarnLog("  corrupt records dropped on load: %d", cacheStats.CorruptDropped)
	}
	if cacheStats.LegacyUpgraded > 0 {
		util.InfoLog("  legacy records upgraded: %d", cacheStats.LegacyUpgraded)
	}
}
