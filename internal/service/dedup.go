package service

import (
	"fmt"
	"time"

	"guild-tracker/internal/domain"
)

// RunDeduper decides whether a fetched run is novel for one player. It is a
// pure in-memory structure scoped to a single sync pass: construct it from
// the player's stored runs, then MarkSeen every run as it is accepted so
// later candidates in the same batch are deduplicated against runs that are
// not persisted yet.
//
// Identity policy: a run with a canonical URL is identified by that URL
// alone. A run without one falls back to the composite key
// dungeon|keyLevel|utcDay, which deliberately collapses two completions of
// the same dungeon at the same level on the same UTC calendar day into one
// run, so re-fetching upstream data with slightly shifted timestamps cannot
// produce duplicates.
type RunDeduper struct {
	seenURLs      map[string]struct{}
	seenComposite map[string]struct{}
}

func NewRunDeduper(existing []domain.MythicRun) *RunDeduper {
	d := &RunDeduper{
		seenURLs:      make(map[string]struct{}),
		seenComposite: make(map[string]struct{}),
	}
	for _, run := range existing {
		d.mark(run.RunURL, run.Dungeon, run.KeyLevel, run.CompletedAt)
	}
	return d
}

func (d *RunDeduper) IsNewRun(run *domain.MythicRun) bool {
	if run.RunURL != "" {
		_, seen := d.seenURLs[run.RunURL]
		return !seen
	}
	_, seen := d.seenComposite[compositeRunKey(run.Dungeon, run.KeyLevel, run.CompletedAt)]
	return !seen
}

func (d *RunDeduper) MarkSeen(run *domain.MythicRun) {
	d.mark(run.RunURL, run.Dungeon, run.KeyLevel, run.CompletedAt)
}

func (d *RunDeduper) mark(url, dungeon string, keyLevel int, completedAt time.Time) {
	if url != "" {
		d.seenURLs[url] = struct{}{}
		return
	}
	d.seenComposite[compositeRunKey(dungeon, keyLevel, completedAt)] = struct{}{}
}

// compositeRunKey truncates the completion timestamp to UTC midnight,
// discarding time-of-day.
func compositeRunKey(dungeon string, keyLevel int, completedAt time.Time) string {
	day := completedAt.UTC().Truncate(24 * time.Hour)
	return fmt.Sprintf("%s|%d|%s", dungeon, keyLevel, day.Format("2006-01-02"))
}
