// Package state persists the mapping from local task id to remote item id,
// plus content fingerprints, across sync runs. The state file is an
// optimization only: a deleted state file is rebuilt by the engine's
// re-anchor pass from TM_ID values on the board.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Record binds one task to its remote item. ContentKind and ContentID are
// fixed at creation: draft and issue-backed items take different body-update
// mutations, so losing the kind would break later updates.
type Record struct {
	RemoteItemID string            `json:"remote_item_id"`
	ContentID    string            `json:"content_id,omitempty"`
	ContentKind  types.ContentKind `json:"content_kind"`
	Fingerprint  string            `json:"fingerprint"`
	LastSeen     time.Time         `json:"last_seen"`
}

// Store holds one tag's identity records. Not safe for concurrent use; the
// engine keeps it single-writer by design.
type Store struct {
	path    string
	records map[string]Record
}

// Path returns the state file location for a tag, under a stable sibling
// directory of the task file.
func Path(taskmasterDir, tag string) string {
	return filepath.Join(taskmasterDir, "state", fmt.Sprintf("sync-state-%s.json", tag))
}

// Load reads the tag's state file. An absent file is a fresh start, not an
// error; an unreadable or corrupt file is fatal.
func Load(taskmasterDir, tag string) (*Store, error) {
	path := Path(taskmasterDir, tag)
	s := &Store{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		debug.Logf("no state file at %s, starting fresh", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrState, path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", types.ErrState, path, err)
	}
	debug.Logf("loaded %d identity records from %s", len(s.records), path)
	return s, nil
}

// Len reports how many identity records are tracked.
func (s *Store) Len() int { return len(s.records) }

// Empty reports whether the store tracks nothing (re-anchor trigger).
func (s *Store) Empty() bool { return len(s.records) == 0 }

// Get returns the record for a task id.
func (s *Store) Get(taskID string) (Record, bool) {
	r, ok := s.records[taskID]
	return r, ok
}

// Put inserts or replaces the record for a task id.
func (s *Store) Put(taskID string, r Record) {
	s.records[taskID] = r
}

// Delete removes a task's record.
func (s *Store) Delete(taskID string) {
	delete(s.records, taskID)
}

// MarkSeen refreshes a record's last_seen without touching its fingerprint.
func (s *Store) MarkSeen(taskID string, now time.Time) {
	if r, ok := s.records[taskID]; ok {
		r.LastSeen = now
		s.records[taskID] = r
	}
}

// TaskIDs returns the tracked task ids, sorted.
func (s *Store) TaskIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Commit atomically rewrites the state file: the new content lands in a
// temporary sibling and is renamed over the old file, so a crash mid-write
// leaves the previous state intact.
func (s *Store) Commit() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating state directory: %v", types.ErrState, err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding state: %v", types.ErrState, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", types.ErrState, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: committing %s: %v", types.ErrState, s.path, err)
	}
	debug.Logf("committed %d identity records to %s", len(s.records), s.path)
	return nil
}
