package engine

import (
	"fmt"

	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/state"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// OpKind labels a planned operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpSkip   OpKind = "skip"
)

// Operation is one planned unit of work against the board. A create or
// update for a parent task covers its field writes and, in separate mode,
// its child items; everything inside one operation is serialized, so two
// operations never touch the same remote item.
type Operation struct {
	Kind OpKind
	// Key is the state key the operation settles: a task id, or a
	// parent::child key for stale child cleanups.
	Key  string
	Task *types.Task
	// Item is the observed board item for updates and deletes. Nil on a
	// delete means the remote item is already gone and only the identity
	// record is dropped.
	Item *github.Item
	// Record is the existing identity record, when one exists.
	Record *state.Record
	// Reason explains the classification, for debug logs.
	Reason string

	// childRecords snapshots the task's tracked separate-mode children so
	// worker goroutines never read the store while the main task owns it.
	childRecords map[string]state.Record
}

// Plan is the ordered work for one run: creates first, then updates, then
// deletes, with skips only touching last_seen. PlanErrors carries conditions
// detected at plan time (duplicate TM_IDs) that execution should surface
// without attempting mutations.
type Plan struct {
	Creates    []*Operation
	Updates    []*Operation
	Deletes    []*Operation
	Skips      []*Operation
	PlanErrors []SyncError
}

// Ops returns the executable operations in dispatch order.
func (p *Plan) Ops() []*Operation {
	ops := make([]*Operation, 0, len(p.Creates)+len(p.Updates)+len(p.Deletes))
	ops = append(ops, p.Creates...)
	ops = append(ops, p.Updates...)
	ops = append(ops, p.Deletes...)
	return ops
}

// PlanInput is everything the planner consumes. The planner is a pure
// function of this input; it performs no I/O.
type PlanInput struct {
	Set          *types.TaskSet
	Store        *state.Store
	Items        []*github.Item
	Fingerprints map[string]string
	Mode         types.SubtaskMode
	FullSync     bool
	KeepOrphans  bool
}

// BuildPlan classifies every task and every tracked record into operations.
func BuildPlan(in PlanInput) *Plan {
	p := &Plan{}

	itemsByID := make(map[string]*github.Item, len(in.Items))
	itemsByTMID := make(map[string]*github.Item)
	titleMatches := make(map[string][]*github.Item)
	for _, it := range in.Items {
		itemsByID[it.ID] = it
		if tmid := it.TMID(); tmid != "" {
			if _, dup := itemsByTMID[tmid]; dup {
				// Duplicate marker: keep the earliest item in page order,
				// flag the extra, and never mutate it.
				p.PlanErrors = append(p.PlanErrors, SyncError{
					TaskID: tmid,
					Phase:  "plan",
					Message: fmt.Sprintf("duplicate TM_ID %q on item %s; keeping earlier item (run clean-duplicates)",
						tmid, it.ID),
				})
				continue
			}
			itemsByTMID[tmid] = it
		} else {
			titleMatches[it.Title] = append(titleMatches[it.Title], it)
		}
	}

	present := make(map[string]bool, len(in.Set.Tasks))
	adopted := make(map[string]bool)
	for _, t := range in.Set.Tasks {
		present[t.ID] = true
		fp := in.Fingerprints[t.ID]

		rec, tracked := in.Store.Get(t.ID)
		if tracked {
			item := itemsByID[rec.RemoteItemID]
			if item == nil {
				// The tracked item vanished from the board (deleted in the
				// UI). Recreate and rebind.
				r := rec
				p.Creates = append(p.Creates, &Operation{
					Kind: OpCreate, Key: t.ID, Task: t, Record: &r,
					Reason: "tracked item missing from board",
				})
				continue
			}
			if in.FullSync || rec.Fingerprint != fp {
				r := rec
				p.Updates = append(p.Updates, &Operation{
					Kind: OpUpdate, Key: t.ID, Task: t, Item: item, Record: &r,
					Reason: "content changed",
				})
			} else {
				p.Skips = append(p.Skips, &Operation{Kind: OpSkip, Key: t.ID, Task: t})
			}
			continue
		}

		// Untracked task: adopt a board item carrying its TM_ID, or a sole
		// same-title item with no TM_ID (a duplicate-in-waiting), before
		// creating anything new.
		if item := itemsByTMID[t.ID]; item != nil {
			p.Updates = append(p.Updates, &Operation{
				Kind: OpUpdate, Key: t.ID, Task: t, Item: item,
				Reason: "adopting item by TM_ID",
			})
			continue
		}
		if same := titleMatches[t.Title]; len(same) == 1 && !adopted[same[0].ID] {
			adopted[same[0].ID] = true
			p.Updates = append(p.Updates, &Operation{
				Kind: OpUpdate, Key: t.ID, Task: t, Item: same[0],
				Reason: "adopting sole same-title item",
			})
			continue
		}
		p.Creates = append(p.Creates, &Operation{Kind: OpCreate, Key: t.ID, Task: t})
	}

	// Stale separate-mode children and mode-switch cleanup: child records
	// whose subtask disappeared, or any child record when the parent now
	// renders nested.
	for _, t := range in.Set.Tasks {
		live := make(map[string]bool, len(t.Subtasks))
		if in.Mode == types.SubtasksSeparate {
			for _, st := range t.Subtasks {
				live[st.ID] = true
			}
		}
		for _, key := range in.Store.ChildKeys(t.ID) {
			_, child, _ := state.SplitChildKey(key)
			if live[child] {
				continue
			}
			rec, _ := in.Store.Get(key)
			r := rec
			p.Deletes = append(p.Deletes, &Operation{
				Kind: OpDelete, Key: key, Item: itemsByID[rec.RemoteItemID], Record: &r,
				Reason: "stale child item",
			})
		}
	}

	// Orphaned records: tracked ids gone from the task set.
	for _, key := range in.Store.TaskIDs() {
		id := key
		if parent, _, ok := state.SplitChildKey(key); ok {
			if present[parent] {
				continue // handled by the stale-children pass above
			}
			id = parent
		}
		if present[id] {
			continue
		}
		rec, _ := in.Store.Get(key)
		r := rec
		if in.KeepOrphans {
			p.Skips = append(p.Skips, &Operation{Kind: OpSkip, Key: key, Reason: "orphan kept"})
			continue
		}
		p.Deletes = append(p.Deletes, &Operation{
			Kind: OpDelete, Key: key, Item: itemByRecord(itemsByID, rec), Record: &r,
			Reason: "orphaned record",
		})
	}

	return p
}

func itemByRecord(itemsByID map[string]*github.Item, rec state.Record) *github.Item {
	return itemsByID[rec.RemoteItemID]
}
