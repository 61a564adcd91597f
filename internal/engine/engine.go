// Package engine plans and executes the reconciliation of a loaded task set
// against a remote project board. It coordinates the loader's output, the
// field catalog, the identity store, and the remote client into one sync
// run, and reports per-run statistics.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/5dlabs/taskmaster-sync/internal/agents"
	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/fields"
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/state"
	"github.com/5dlabs/taskmaster-sync/internal/subtasks"
	"github.com/5dlabs/taskmaster-sync/internal/syncconfig"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Options tunes one sync run.
type Options struct {
	// DryRun computes the plan and statistics without mutating anything,
	// remote or local.
	DryRun bool
	// FullSync ignores cached fingerprints and rewrites every item's fields.
	FullSync bool
	// Mode selects nested or separate subtask projection.
	Mode types.SubtaskMode
	// KeepOrphans leaves board items whose task disappeared from the file.
	KeepOrphans bool
	// StrictFields refuses to create missing board fields instead of
	// provisioning them.
	StrictFields bool
	// Concurrency caps the worker pool; 0 takes the remote client's cap.
	Concurrency int
}

// Engine reconciles one tag against one board. Construct per run pair via
// New; the zero value is not usable.
type Engine struct {
	remote   Remote
	catalog  *fields.Catalog
	resolver *agents.Resolver
	store    *state.Store
	project  *github.Project
	mapping  syncconfig.ProjectMapping
	tag      string
	opts     Options

	// now is a seam for tests.
	now func() time.Time

	idMu    sync.Mutex
	repoID  string
	userIDs map[string]string
}

// New assembles an engine. The catalog must target the same project.
func New(remote Remote, catalog *fields.Catalog, resolver *agents.Resolver,
	store *state.Store, project *github.Project, mapping syncconfig.ProjectMapping,
	tag string, opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = types.SubtasksNested
	}
	if resolver == nil {
		resolver = agents.New(agents.Config{})
	}
	return &Engine{
		remote:   remote,
		catalog:  catalog,
		resolver: resolver,
		store:    store,
		project:  project,
		mapping:  mapping,
		tag:      tag,
		opts:     opts,
		now:      time.Now,
		userIDs:  make(map[string]string),
	}
}

// Run performs one full reconciliation pass and returns its statistics.
// Statistics are returned even when the run aborts, carrying whatever was
// observed before the failure.
func (e *Engine) Run(ctx context.Context, set *types.TaskSet) (*Statistics, error) {
	stats := &Statistics{}

	// Field provisioning mutates the board, so a dry run skips it; the plan
	// itself only needs the item snapshot.
	if !e.opts.DryRun {
		if err := e.catalog.EnsureAll(ctx, e.agentOptions(), !e.opts.StrictFields); err != nil {
			return stats, err
		}
	}

	items, err := e.remote.ListItems(ctx, e.project.ID)
	if err != nil {
		return stats, fmt.Errorf("listing board items: %w", err)
	}
	debug.Logf("board %s has %d items", e.project.ID, len(items))

	fps := e.fingerprints(set)

	// A lost state file with a populated board means the identities must be
	// rebuilt from the TM_ID markers before planning, or every task would
	// look new and the board would fill with duplicates.
	if e.store.Empty() && len(items) > 0 {
		e.reanchor(set, items)
	}

	plan := BuildPlan(PlanInput{
		Set:          set,
		Store:        e.store,
		Items:        items,
		Fingerprints: fps,
		Mode:         e.opts.Mode,
		FullSync:     e.opts.FullSync,
		KeepOrphans:  e.opts.KeepOrphans,
	})
	e.attachChildRecords(plan)
	stats.Errors = append(stats.Errors, plan.PlanErrors...)
	debug.Logf("plan: %d creates, %d updates, %d deletes, %d skips",
		len(plan.Creates), len(plan.Updates), len(plan.Deletes), len(plan.Skips))

	if e.opts.DryRun {
		stats.Created = len(plan.Creates)
		stats.Updated = len(plan.Updates)
		stats.Deleted = len(plan.Deletes)
		stats.Skipped = len(plan.Skips)
		return stats, nil
	}

	e.execute(ctx, plan, fps, stats)

	for _, op := range plan.Skips {
		e.store.MarkSeen(op.Key, e.now())
		stats.addSkipped()
	}

	// The state file reflects exactly what was applied, even after a
	// cancelled or partially failed run.
	if err := e.store.Commit(); err != nil {
		return stats, err
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// fingerprints computes the current fingerprint for every task in the set.
func (e *Engine) fingerprints(set *types.TaskSet) map[string]string {
	fps := make(map[string]string, len(set.Tasks))
	for _, t := range set.Tasks {
		fps[t.ID] = types.Fingerprint(t, subtasks.Form(t, e.opts.Mode))
	}
	return fps
}

// reanchor reconstructs identity records by matching board TM_ID values
// against the loaded tasks. Items without a TM_ID, or with one that matches
// no task, are left untouched. Rebuilt records carry an empty fingerprint so
// the next planning pass treats them as changed and reconverges field values.
func (e *Engine) reanchor(set *types.TaskSet, items []*github.Item) {
	known := make(map[string]bool, len(set.Tasks))
	for _, t := range set.Tasks {
		known[t.ID] = true
	}
	rebuilt := 0
	for _, it := range items {
		tmid := it.TMID()
		if tmid == "" {
			continue
		}
		parent, _, isChild := state.SplitChildKey(tmid)
		if isChild {
			if !known[parent] {
				continue
			}
		} else if !known[tmid] {
			continue
		}
		if _, exists := e.store.Get(tmid); exists {
			continue // duplicate TM_ID; planner reports it
		}
		e.store.Put(tmid, state.Record{
			RemoteItemID: it.ID,
			ContentID:    it.ContentID,
			ContentKind:  it.ContentKind,
			LastSeen:     e.now(),
		})
		rebuilt++
	}
	debug.Logf("re-anchored %d identity records from board TM_IDs", rebuilt)
}

// attachChildRecords snapshots each task's tracked child records into its
// operation so workers never read the store concurrently.
func (e *Engine) attachChildRecords(p *Plan) {
	attach := func(ops []*Operation) {
		for _, op := range ops {
			if op.Task == nil {
				continue
			}
			op.childRecords = make(map[string]state.Record)
			for _, key := range e.store.ChildKeys(op.Task.ID) {
				rec, _ := e.store.Get(key)
				op.childRecords[key] = rec
			}
		}
	}
	attach(p.Creates)
	attach(p.Updates)
}

// agentOptions lists the configured agent option names for seeding the
// Agent field.
func (e *Engine) agentOptions() []string {
	return e.resolver.OptionNames()
}

// repositoryID resolves (once) the node id of the mapping's repository.
func (e *Engine) repositoryID(ctx context.Context) (string, error) {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	if e.repoID != "" {
		return e.repoID, nil
	}
	owner, name, ok := splitRepo(e.mapping.Repository)
	if !ok {
		return "", fmt.Errorf("%w: repository %q is not owner/name", types.ErrConfig, e.mapping.Repository)
	}
	id, err := e.remote.GetRepositoryID(ctx, owner, name)
	if err != nil {
		return "", err
	}
	e.repoID = id
	return id, nil
}

// userID resolves and caches a login's node id.
func (e *Engine) userID(ctx context.Context, login string) (string, error) {
	e.idMu.Lock()
	if id, ok := e.userIDs[login]; ok {
		e.idMu.Unlock()
		return id, nil
	}
	e.idMu.Unlock()

	id, err := e.remote.GetUserID(ctx, login)
	if err != nil {
		return "", err
	}
	e.idMu.Lock()
	e.userIDs[login] = id
	e.idMu.Unlock()
	return id, nil
}

func splitRepo(repo string) (owner, name string, ok bool) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			owner, name = repo[:i], repo[i+1:]
			return owner, name, owner != "" && name != ""
		}
	}
	return "", "", false
}

// itemKind reports what kind of item this engine creates.
func (e *Engine) itemKind() types.ContentKind {
	if e.mapping.Repository != "" {
		return types.KindIssue
	}
	return types.KindDraft
}
