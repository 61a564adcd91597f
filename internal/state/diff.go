package state

import (
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Classification of one task relative to the previous run.
type Classification int

const (
	// NewTask has no identity record yet.
	NewTask Classification = iota
	// ChangedTask has a record with a different fingerprint.
	ChangedTask
	// UnchangedTask has a record with a matching fingerprint.
	UnchangedTask
)

// Diff is the delta between a loaded task set and the stored state.
type Diff struct {
	New       []*types.Task
	Changed   []*types.Task
	Unchanged []*types.Task
	// Orphans are tracked task ids that no longer appear in the set.
	Orphans []string
}

// Diff classifies every task in the set against the stored records. The
// fingerprints map carries the current run's fingerprint per task id; a
// fingerprint mismatch marks the task changed. With full set, every tracked
// task classifies as changed regardless of fingerprint (forced resync).
func (s *Store) Diff(set *types.TaskSet, fingerprints map[string]string, full bool) Diff {
	var d Diff
	present := make(map[string]bool, len(set.Tasks))

	for _, t := range set.Tasks {
		present[t.ID] = true
		rec, ok := s.records[t.ID]
		switch {
		case !ok:
			d.New = append(d.New, t)
		case full || rec.Fingerprint != fingerprints[t.ID]:
			d.Changed = append(d.Changed, t)
		default:
			d.Unchanged = append(d.Unchanged, t)
		}
	}

	for _, id := range s.TaskIDs() {
		if parent, _, ok := SplitChildKey(id); ok {
			// Separate-mode child records live and die with their parent
			// here; the engine reconciles per-subtask staleness itself.
			if !present[parent] {
				d.Orphans = append(d.Orphans, id)
			}
			continue
		}
		if !present[id] {
			d.Orphans = append(d.Orphans, id)
		}
	}
	return d
}
