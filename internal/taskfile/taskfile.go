// Package taskfile reads the source-of-truth task file and produces the
// canonical task set for one tag. The file is read-only to this tool.
//
// Two shapes are accepted: the tagged shape, a top-level mapping from tag
// name to {tasks, metadata}, and the legacy shape, a top-level {tasks: [...]}
// which loads under the default tag. Task ids and dependency references may
// appear as JSON numbers in older files; both are normalized to strings.
package taskfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// DefaultTag is used when loading a legacy-shape file with no tag selector.
const DefaultTag = "master"

// Options controls loader behavior.
type Options struct {
	// Strict rejects unknown status or priority values instead of coercing
	// them to the defaults with a warning.
	Strict bool
}

// Result carries the loaded set plus non-fatal warnings (stripped
// dependencies, coerced field values).
type Result struct {
	Set      *types.TaskSet
	Warnings []string
}

// rawTask mirrors one task entry with tolerant field types. Unknown keys
// are ignored by encoding/json.
type rawTask struct {
	ID           json.RawMessage   `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Details      string            `json:"details"`
	Status       string            `json:"status"`
	Priority     string            `json:"priority"`
	Assignee     string            `json:"assignee"`
	Dependencies []json.RawMessage `json:"dependencies"`
	TestStrategy string            `json:"testStrategy"`
	Subtasks     []json.RawMessage `json:"subtasks"`
}

type taggedTasks struct {
	Tasks []json.RawMessage `json:"tasks"`
}

// Load reads the task file at path and returns the task set for tag.
// An empty tag selects the legacy default.
func Load(path, tag string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from CLI/config
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrParse, path, err)
	}
	return Parse(data, tag, opts)
}

// Parse decodes task file content. Split from Load for tests.
func Parse(data []byte, tag string, opts Options) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}

	if tag == "" {
		tag = DefaultTag
	}

	rawTasks, err := selectTag(top, tag)
	if err != nil {
		return nil, err
	}

	res := &Result{Set: &types.TaskSet{Tag: tag}}
	seen := make(map[string]bool)
	for i, raw := range rawTasks {
		task, warns, err := decodeTask(raw, i, opts)
		if err != nil {
			return nil, err
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("%w: duplicate task id %q in tag %q", types.ErrParse, task.ID, tag)
		}
		seen[task.ID] = true
		res.Warnings = append(res.Warnings, warns...)
		res.Set.Tasks = append(res.Set.Tasks, task)
	}

	res.stripUnresolvedDeps(seen)
	debug.Logf("loaded %d tasks for tag %q (%d warnings)", len(res.Set.Tasks), tag, len(res.Warnings))
	return res, nil
}

// selectTag resolves the tag's raw task array from either file shape.
func selectTag(top map[string]json.RawMessage, tag string) ([]json.RawMessage, error) {
	// Legacy shape: a top-level tasks array.
	if raw, ok := top["tasks"]; ok {
		var tasks []json.RawMessage
		if err := json.Unmarshal(raw, &tasks); err == nil {
			if tag != DefaultTag {
				return nil, fmt.Errorf("%w: tag %q not found (legacy file holds only %q)", types.ErrParse, tag, DefaultTag)
			}
			return tasks, nil
		}
	}

	raw, ok := top[tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %q not found", types.ErrParse, tag)
	}
	var tt taggedTasks
	if err := json.Unmarshal(raw, &tt); err != nil || tt.Tasks == nil {
		return nil, fmt.Errorf("%w: tag %q has no tasks array", types.ErrParse, tag)
	}
	return tt.Tasks, nil
}

// Tags lists the tags available in the file, sorted. A legacy file reports
// the default tag.
func Tags(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrParse, path, err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}
	if raw, ok := top["tasks"]; ok {
		var tasks []json.RawMessage
		if err := json.Unmarshal(raw, &tasks); err == nil {
			return []string{DefaultTag}, nil
		}
	}
	var tags []string
	for name, raw := range top {
		var tt taggedTasks
		if err := json.Unmarshal(raw, &tt); err == nil && tt.Tasks != nil {
			tags = append(tags, name)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func decodeTask(raw json.RawMessage, idx int, opts Options) (*types.Task, []string, error) {
	var rt rawTask
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, nil, fmt.Errorf("%w: task %d: %v", types.ErrParse, idx, err)
	}

	id, err := flexString(rt.ID)
	if err != nil || id == "" {
		return nil, nil, fmt.Errorf("%w: task %d has no usable id", types.ErrParse, idx)
	}

	title := strings.TrimSpace(rt.Title)
	if title == "" {
		return nil, nil, fmt.Errorf("%w: task %q has an empty title", types.ErrParse, id)
	}

	var warns []string
	task := &types.Task{
		ID:           id,
		Title:        title,
		Description:  strings.TrimSpace(rt.Description),
		Details:      strings.TrimSpace(rt.Details),
		Assignee:     strings.TrimSpace(rt.Assignee),
		TestStrategy: strings.TrimSpace(rt.TestStrategy),
	}

	task.Status, warns = normalizeStatus(rt.Status, id, opts, warns)
	if !task.Status.IsValid() && opts.Strict {
		return nil, nil, fmt.Errorf("%w: task %q has unknown status %q", types.ErrParse, id, rt.Status)
	}
	task.Priority, warns = normalizePriority(rt.Priority, id, opts, warns)
	if !task.Priority.IsValid() && opts.Strict {
		return nil, nil, fmt.Errorf("%w: task %q has unknown priority %q", types.ErrParse, id, rt.Priority)
	}

	for _, d := range rt.Dependencies {
		dep, err := flexString(d)
		if err != nil || dep == "" {
			warns = append(warns, fmt.Sprintf("task %s: dropping unreadable dependency entry", id))
			continue
		}
		task.Dependencies = append(task.Dependencies, dep)
	}

	for i, sub := range rt.Subtasks {
		st, subWarns, err := decodeSubtask(sub, id, i, opts)
		if err != nil {
			return nil, nil, err
		}
		warns = append(warns, subWarns...)
		task.Subtasks = append(task.Subtasks, st)
	}

	return task, warns, nil
}

// decodeSubtask accepts either a full task object or a bare string, which
// becomes a pending task titled with that string.
func decodeSubtask(raw json.RawMessage, parentID string, idx int, opts Options) (*types.Task, []string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return nil, nil, fmt.Errorf("%w: task %q subtask %d: %v", types.ErrParse, parentID, idx, err)
		}
		return &types.Task{
			ID:     fmt.Sprintf("subtask-%d", idx),
			Title:  strings.TrimSpace(title),
			Status: types.StatusPending,
		}, nil, nil
	}
	return decodeTask(raw, idx, opts)
}

func normalizeStatus(s, id string, opts Options, warns []string) (types.Status, []string) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return types.StatusPending, warns
	}
	st := types.Status(s)
	if st.IsValid() {
		return st, warns
	}
	if !opts.Strict {
		warns = append(warns, fmt.Sprintf("task %s: unknown status %q, treating as pending", id, s))
		return types.StatusPending, warns
	}
	return st, warns
}

func normalizePriority(p, id string, opts Options, warns []string) (types.Priority, []string) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return types.PriorityNone, warns
	}
	pr := types.Priority(p)
	if pr.IsValid() {
		return pr, warns
	}
	if !opts.Strict {
		warns = append(warns, fmt.Sprintf("task %s: unknown priority %q, treating as none", id, p))
		return types.PriorityNone, warns
	}
	return pr, warns
}

// stripUnresolvedDeps removes dependency references that do not resolve
// within the loaded set. The remote side tolerates missing back-references,
// so this is a warning rather than an error.
func (r *Result) stripUnresolvedDeps(ids map[string]bool) {
	for _, t := range r.Set.Tasks {
		kept := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if ids[dep] {
				kept = append(kept, dep)
				continue
			}
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("task %s: dependency %q does not exist in tag %q, ignoring", t.ID, dep, r.Set.Tag))
		}
		t.Dependencies = kept
	}
}

// flexString decodes a JSON value that may be a string or a number.
func flexString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("neither string nor number: %s", raw)
}
