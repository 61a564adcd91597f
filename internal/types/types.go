// Package types defines the core data structures shared across the
// taskmaster-sync engine: tasks, status and priority vocabularies, and
// the content fingerprint used for change detection.
package types

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task as declared in the task file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses is the closed set accepted by the loader.
var ValidStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusBlocked,
	StatusDeferred,
	StatusCancelled,
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Priority is the declared importance of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return true
	}
	return false
}

// Task is one unit of work loaded from the task file. Tasks are immutable
// for the duration of a sync run; the loader owns construction.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Details      string   `json:"details,omitempty"`
	Status       Status   `json:"status,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	Assignee     string   `json:"assignee,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	TestStrategy string   `json:"testStrategy,omitempty"`
	Subtasks     []*Task  `json:"subtasks,omitempty"`
}

// Body assembles the markdown body for the task's remote item, excluding
// the generated subtask region (the renderer owns that).
func (t *Task) Body() string {
	var b strings.Builder
	b.WriteString(t.Description)
	if t.Details != "" {
		fmt.Fprintf(&b, "\n\n## Details\n%s", t.Details)
	}
	if t.TestStrategy != "" {
		fmt.Fprintf(&b, "\n\n## Test Strategy\n%s", t.TestStrategy)
	}
	return b.String()
}

// TaskSet is the canonical loaded form of one tag's tasks, in source order.
type TaskSet struct {
	Tag   string
	Tasks []*Task
}

// ByID returns the task with the given id, or nil.
func (s *TaskSet) ByID(id string) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// IDs returns the task identifiers in source order.
func (s *TaskSet) IDs() []string {
	ids := make([]string, len(s.Tasks))
	for i, t := range s.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// ContentKind records how a remote item was created. Draft items and
// issue-backed items take different body-update mutations, so the kind is
// fixed at creation and persisted in the identity record.
type ContentKind string

const (
	KindDraft ContentKind = "draft"
	KindIssue ContentKind = "issue"
)

// SubtaskMode selects how subtasks project onto the board.
type SubtaskMode string

const (
	// SubtasksNested renders subtasks as a checklist region in the parent body.
	SubtasksNested SubtaskMode = "nested"
	// SubtasksSeparate creates one board item per subtask, linked from the parent.
	SubtasksSeparate SubtaskMode = "separate"
)
