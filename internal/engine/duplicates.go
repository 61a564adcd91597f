package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/5dlabs/taskmaster-sync/internal/github"
)

// DuplicateReport describes items sharing an identity on one board.
type DuplicateReport struct {
	// ByTMID lists items per duplicated TM_ID, in board page order. Only
	// ids with more than one item appear.
	ByTMID map[string][]*github.Item
	// Shadowed are items with no TM_ID whose title is also carried by a
	// TM_ID-bearing item; they are almost always botched creates.
	Shadowed []*github.Item
	// Total is the board's item count.
	Total int
}

// HasDuplicates reports whether anything needs cleaning.
func (r *DuplicateReport) HasDuplicates() bool {
	return len(r.ByTMID) > 0 || len(r.Shadowed) > 0
}

// TMIDs returns the duplicated ids, sorted.
func (r *DuplicateReport) TMIDs() []string {
	ids := make([]string, 0, len(r.ByTMID))
	for id := range r.ByTMID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindDuplicates scans a board's items for TM_ID collisions and shadowed
// untracked items.
func FindDuplicates(items []*github.Item) *DuplicateReport {
	rep := &DuplicateReport{ByTMID: make(map[string][]*github.Item), Total: len(items)}

	byTMID := make(map[string][]*github.Item)
	trackedTitles := make(map[string]bool)
	var untracked []*github.Item
	for _, it := range items {
		if tmid := it.TMID(); tmid != "" {
			byTMID[tmid] = append(byTMID[tmid], it)
			trackedTitles[it.Title] = true
		} else {
			untracked = append(untracked, it)
		}
	}

	for tmid, group := range byTMID {
		if len(group) > 1 {
			rep.ByTMID[tmid] = group
		}
	}
	for _, it := range untracked {
		if trackedTitles[it.Title] {
			rep.Shadowed = append(rep.Shadowed, it)
		}
	}
	return rep
}

// CleanDuplicates deletes every duplicate but the earliest per TM_ID, plus
// all shadowed untracked items. Returns how many items were removed; item
// deletion failures are collected, not fatal.
func CleanDuplicates(ctx context.Context, remote Remote, projectID string, rep *DuplicateReport) (int, []error) {
	var deleted int
	var errs []error
	for _, tmid := range rep.TMIDs() {
		for _, it := range rep.ByTMID[tmid][1:] {
			if err := remote.DeleteItem(ctx, projectID, it.ID); err != nil {
				errs = append(errs, fmt.Errorf("deleting duplicate of %s (item %s): %w", tmid, it.ID, err))
				continue
			}
			deleted++
		}
	}
	for _, it := range rep.Shadowed {
		if err := remote.DeleteItem(ctx, projectID, it.ID); err != nil {
			errs = append(errs, fmt.Errorf("deleting shadowed item %q (%s): %w", it.Title, it.ID, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}
