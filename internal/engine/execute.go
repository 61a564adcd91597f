package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/5dlabs/taskmaster-sync/internal/agents"
	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/state"
	"github.com/5dlabs/taskmaster-sync/internal/subtasks"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// change is one state-store edit produced by an operation. The executor's
// main goroutine applies changes; workers only produce them.
type change struct {
	key string
	rec *state.Record // nil with del set removes the record
	del bool
}

// opResult travels from a worker back to the main goroutine.
type opResult struct {
	op      *Operation
	changes []change
	err     error
}

// execute dispatches the plan onto a bounded worker pool. Creates run
// before updates, updates before deletes (the plan's op order); operations
// in the same phase are independent and run concurrently. Outcomes drain
// through a channel into the store, keeping it single-writer. Cancellation
// stops dispatch between items; in-flight operations finish and their
// results are still applied.
func (e *Engine) execute(ctx context.Context, plan *Plan, fps map[string]string, stats *Statistics) {
	workers := e.opts.Concurrency
	if limit := e.remote.Concurrency(); workers <= 0 || workers > limit {
		workers = limit
	}
	sem := make(chan struct{}, workers)
	results := make(chan opResult)

	phases := [][]*Operation{plan.Creates, plan.Updates, plan.Deletes}
	go func() {
		defer close(results)
		var wg sync.WaitGroup
		for _, phase := range phases {
			for _, op := range phase {
				if ctx.Err() != nil {
					break
				}
				sem <- struct{}{}
				wg.Add(1)
				go func(op *Operation) {
					defer wg.Done()
					defer func() { <-sem }()
					changes, err := e.runOp(ctx, op)
					results <- opResult{op: op, changes: changes, err: err}
				}(op)
			}
			// Creates that mint identifiers must land before any later
			// phase consumes them.
			wg.Wait()
		}
	}()

	for res := range results {
		for _, ch := range res.changes {
			if ch.del {
				e.store.Delete(ch.key)
			} else if ch.rec != nil {
				e.store.Put(ch.key, *ch.rec)
			}
		}
		e.count(res, stats)
	}
}

func (e *Engine) count(res opResult, stats *Statistics) {
	if res.err != nil {
		stats.addError(res.op.Key, string(res.op.Kind), res.err)
		debug.Logf("op %s %s failed: %v", res.op.Kind, res.op.Key, res.err)
		// A create that got far enough to mint an item still counts; the
		// changes carry the record.
		if res.op.Kind == OpCreate && len(res.changes) > 0 {
			stats.addCreated()
		}
		return
	}
	switch res.op.Kind {
	case OpCreate:
		stats.addCreated()
	case OpUpdate:
		stats.addUpdated()
	case OpDelete:
		stats.addDeleted()
	}
}

func (e *Engine) runOp(ctx context.Context, op *Operation) ([]change, error) {
	switch op.Kind {
	case OpCreate:
		return e.execCreate(ctx, op)
	case OpUpdate:
		return e.execUpdate(ctx, op)
	case OpDelete:
		return e.execDelete(ctx, op)
	}
	return nil, nil
}

// execCreate creates the item for a task, writes its fields, and in
// separate mode creates its child items and back-links them from the parent
// body. Partial progress is preserved: once the item exists, its identity
// record is returned even if later field writes fail; the empty fingerprint
// forces reconvergence on the next run.
func (e *Engine) execCreate(ctx context.Context, op *Operation) ([]change, error) {
	t := op.Task
	assignment := e.assignmentFor(t)

	body := t.Body()
	if e.opts.Mode == types.SubtasksNested && len(t.Subtasks) > 0 {
		body = subtasks.Body(t, types.SubtasksNested, nil)
	}

	itemID, contentID, err := e.createItem(ctx, t.Title, body, assignment)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	rec := state.Record{
		RemoteItemID: itemID,
		ContentID:    contentID,
		ContentKind:  e.itemKind(),
		Fingerprint:  e.fingerprintFor(t),
		LastSeen:     e.now(),
	}
	changes := []change{{key: t.ID, rec: &rec}}

	var errs []error
	if err := e.setTMID(ctx, itemID, t.ID); err != nil {
		errs = append(errs, err)
	}
	if err := e.writeFields(ctx, itemID, t, assignment, nil, true); err != nil {
		errs = append(errs, err)
	}

	if e.opts.Mode == types.SubtasksSeparate && len(t.Subtasks) > 0 {
		childChanges, err := e.syncChildren(ctx, op, itemID, contentID, rec.ContentKind)
		changes = append(changes, childChanges...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		// Leave the record dirty so the next run retries the failed writes.
		rec.Fingerprint = ""
		return changes, errors.Join(errs...)
	}
	return changes, nil
}

// execUpdate reconciles an existing item with its task: field-level diffs,
// a body rewrite when the rendered body or title drifted, and child item
// reconciliation in separate mode. op.Record is nil when adopting an item
// found by TM_ID or title; the record is then bound from the observed item.
func (e *Engine) execUpdate(ctx context.Context, op *Operation) ([]change, error) {
	t, item := op.Task, op.Item
	assignment := e.assignmentFor(t)

	kind := item.ContentKind
	contentID := item.ContentID
	if op.Record != nil {
		kind = op.Record.ContentKind
		if op.Record.ContentID != "" {
			contentID = op.Record.ContentID
		}
	}

	rec := state.Record{
		RemoteItemID: item.ID,
		ContentID:    contentID,
		ContentKind:  kind,
		Fingerprint:  e.fingerprintFor(t),
		LastSeen:     e.now(),
	}
	changes := []change{{key: t.ID, rec: &rec}}

	var errs []error
	// Observed values feed the per-field diff; full sync bypasses the diff
	// via writeAll but the Done guard still reads them.
	observed := item.FieldValues

	if item.TMID() == "" {
		if err := e.setTMID(ctx, item.ID, t.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.writeFields(ctx, item.ID, t, assignment, observed, e.opts.FullSync); err != nil {
		errs = append(errs, err)
	}

	if e.opts.Mode == types.SubtasksSeparate && len(t.Subtasks) > 0 {
		// syncChildren rewrites the parent body with the link list, so the
		// plain body path below is skipped.
		childChanges, err := e.syncChildren(ctx, op, item.ID, contentID, kind)
		changes = append(changes, childChanges...)
		if err != nil {
			errs = append(errs, err)
		}
	} else {
		wantBody := subtasks.Body(t, e.opts.Mode, nil)
		if e.opts.FullSync || wantBody != item.Body || t.Title != item.Title {
			if err := e.updateBody(ctx, kind, item.ID, contentID, t.Title, wantBody); err != nil {
				errs = append(errs, fmt.Errorf("updating body: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		rec.Fingerprint = ""
		return changes, errors.Join(errs...)
	}
	return changes, nil
}

func (e *Engine) execDelete(ctx context.Context, op *Operation) ([]change, error) {
	if op.Item == nil {
		// The remote item is already gone; only the record remains.
		return []change{{key: op.Key, del: true}}, nil
	}
	if err := e.remote.DeleteItem(ctx, e.project.ID, op.Item.ID); err != nil {
		return nil, fmt.Errorf("deleting item: %w", err)
	}
	return []change{{key: op.Key, del: true}}, nil
}

// syncChildren creates or refreshes the separate-mode child items of a
// parent, then rewrites the parent's generated region with the link list.
func (e *Engine) syncChildren(ctx context.Context, op *Operation, parentItemID, parentContentID string, parentKind types.ContentKind) ([]change, error) {
	t := op.Task
	var changes []change
	var errs []error
	var links []subtasks.ChildLink

	for _, spec := range subtasks.Children(t) {
		links = append(links, subtasks.ChildLink{ChildID: spec.ChildID, Title: spec.Title, Status: spec.Status})
		key := state.ChildKey(t.ID, spec.ChildID)
		sub := findSubtask(t, spec.ChildID)
		fp := types.Fingerprint(sub, "")

		if rec, ok := op.childRecords[key]; ok {
			if rec.Fingerprint == fp && !e.opts.FullSync {
				continue
			}
			if err := e.updateBody(ctx, rec.ContentKind, rec.RemoteItemID, rec.ContentID, spec.Title, spec.Body); err != nil {
				errs = append(errs, fmt.Errorf("child %s: %w", spec.ChildID, err))
				continue
			}
			if err := e.writeChildStatus(ctx, rec.RemoteItemID, sub.Status); err != nil {
				errs = append(errs, fmt.Errorf("child %s: %w", spec.ChildID, err))
			}
			rec.Fingerprint = fp
			rec.LastSeen = e.now()
			r := rec
			changes = append(changes, change{key: key, rec: &r})
			continue
		}

		itemID, contentID, err := e.createItem(ctx, spec.Title, spec.Body, agents.Assignment{})
		if err != nil {
			errs = append(errs, fmt.Errorf("child %s: creating item: %w", spec.ChildID, err))
			continue
		}
		rec := state.Record{
			RemoteItemID: itemID,
			ContentID:    contentID,
			ContentKind:  e.itemKind(),
			Fingerprint:  fp,
			LastSeen:     e.now(),
		}
		changes = append(changes, change{key: key, rec: &rec})
		if err := e.setTMID(ctx, itemID, key); err != nil {
			errs = append(errs, fmt.Errorf("child %s: %w", spec.ChildID, err))
		}
		if err := e.writeChildStatus(ctx, itemID, sub.Status); err != nil {
			errs = append(errs, fmt.Errorf("child %s: %w", spec.ChildID, err))
		}
	}

	// Back-link the children from the parent's generated region.
	body := subtasks.Body(t, types.SubtasksSeparate, links)
	if err := e.updateBody(ctx, parentKind, parentItemID, parentContentID, t.Title, body); err != nil {
		errs = append(errs, fmt.Errorf("back-linking children: %w", err))
	}
	return changes, errors.Join(errs...)
}

func findSubtask(t *types.Task, childID string) *types.Task {
	for _, st := range t.Subtasks {
		if st.ID == childID {
			return st
		}
	}
	return nil
}

// createItem creates a draft or issue-backed item per the project mapping.
func (e *Engine) createItem(ctx context.Context, title, body string, assignment agents.Assignment) (itemID, contentID string, err error) {
	if e.itemKind() == types.KindDraft {
		res, err := e.remote.CreateDraftItem(ctx, e.project.ID, title, body)
		if err != nil {
			return "", "", err
		}
		return res.ItemID, res.ContentID, nil
	}

	repoID, err := e.repositoryID(ctx)
	if err != nil {
		return "", "", err
	}
	var assigneeIDs []string
	if assignment.Login != "" {
		if uid, err := e.userID(ctx, assignment.Login); err == nil {
			assigneeIDs = append(assigneeIDs, uid)
		} else {
			debug.Logf("cannot resolve login %q, creating unassigned: %v", assignment.Login, err)
		}
	}
	issueID, err := e.remote.CreateIssue(ctx, repoID, title, body, assigneeIDs)
	if err != nil {
		return "", "", err
	}
	itemID, err = e.remote.AddIssueToProject(ctx, e.project.ID, issueID)
	if err != nil {
		return "", "", err
	}
	return itemID, issueID, nil
}

// updateBody routes a body rewrite through the mutation matching the item's
// content kind. The two paths are never mixed.
func (e *Engine) updateBody(ctx context.Context, kind types.ContentKind, itemID, contentID, title, body string) error {
	if contentID == "" {
		return fmt.Errorf("no content id recorded for item %s", itemID)
	}
	if kind == types.KindIssue {
		return e.remote.UpdateIssueBody(ctx, itemID, contentID, title, body)
	}
	return e.remote.UpdateDraftBody(ctx, itemID, contentID, title, body)
}

// assignmentFor resolves the agent assignment, routing items entering QA
// Review to the configured qa actor when one exists.
func (e *Engine) assignmentFor(t *types.Task) agents.Assignment {
	a := e.resolver.Resolve(t)
	if t.Status == types.StatusDone {
		if qa, ok := e.resolver.QA(); ok {
			a.Login = qa.Login
		}
	}
	return a
}

// dependenciesValue renders the Dependencies text field.
func dependenciesValue(t *types.Task) string {
	return strings.Join(t.Dependencies, ",")
}

func (e *Engine) fingerprintFor(t *types.Task) string {
	return types.Fingerprint(t, subtasks.Form(t, e.opts.Mode))
}
