package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

func TestLoadAbsentIsFreshStart(t *testing.T) {
	s, err := Load(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Empty() {
		t.Error("fresh store should be empty")
	}
}

func TestCommitAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, "main")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Put("T1", Record{
		RemoteItemID: "item-1",
		ContentID:    "draft-1",
		ContentKind:  types.KindDraft,
		Fingerprint:  "abc",
		LastSeen:     now,
	})
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reloaded, err := Load(dir, "main")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, ok := reloaded.Get("T1")
	if !ok {
		t.Fatal("record missing after reload")
	}
	if rec.RemoteItemID != "item-1" || rec.ContentKind != types.KindDraft || rec.Fingerprint != "abc" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.LastSeen.Equal(now) {
		t.Errorf("last_seen = %v, want %v", rec.LastSeen, now)
	}
}

func TestStateFilesArePerTag(t *testing.T) {
	dir := t.TempDir()
	a, _ := Load(dir, "main")
	a.Put("T1", Record{RemoteItemID: "x"})
	if err := a.Commit(); err != nil {
		t.Fatal(err)
	}

	b, err := Load(dir, "feature")
	if err != nil {
		t.Fatal(err)
	}
	if !b.Empty() {
		t.Error("tags must not share state files")
	}
}

func TestCommitIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, _ := Load(dir, "main")
	s.Put("T1", Record{RemoteItemID: "item-1"})
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	// No temp file left behind, and the content is valid JSON.
	if _, err := os.Stat(Path(dir, "main") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after commit")
	}
	data, err := os.ReadFile(Path(dir, "main"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]Record
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
}

func TestLoadCorruptFileFatal(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "main")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir, "main"); !errors.Is(err, types.ErrState) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestMarkSeen(t *testing.T) {
	s, _ := Load(t.TempDir(), "main")
	s.Put("T1", Record{Fingerprint: "abc"})

	now := time.Now()
	s.MarkSeen("T1", now)
	rec, _ := s.Get("T1")
	if !rec.LastSeen.Equal(now) {
		t.Errorf("last_seen not updated")
	}
	if rec.Fingerprint != "abc" {
		t.Error("mark_seen must not touch the fingerprint")
	}

	s.MarkSeen("absent", now) // no-op, must not create a record
	if _, ok := s.Get("absent"); ok {
		t.Error("mark_seen created a record")
	}
}

func TestDiffClassification(t *testing.T) {
	s, _ := Load(t.TempDir(), "main")
	s.Put("same", Record{Fingerprint: "fp-same"})
	s.Put("changed", Record{Fingerprint: "fp-old"})
	s.Put("gone", Record{Fingerprint: "fp-gone"})

	set := &types.TaskSet{Tag: "main", Tasks: []*types.Task{
		{ID: "same", Title: "a"},
		{ID: "changed", Title: "b"},
		{ID: "new", Title: "c"},
	}}
	fps := map[string]string{"same": "fp-same", "changed": "fp-new", "new": "fp-n"}

	d := s.Diff(set, fps, false)
	if len(d.New) != 1 || d.New[0].ID != "new" {
		t.Errorf("New = %v", ids(d.New))
	}
	if len(d.Changed) != 1 || d.Changed[0].ID != "changed" {
		t.Errorf("Changed = %v", ids(d.Changed))
	}
	if len(d.Unchanged) != 1 || d.Unchanged[0].ID != "same" {
		t.Errorf("Unchanged = %v", ids(d.Unchanged))
	}
	if len(d.Orphans) != 1 || d.Orphans[0] != "gone" {
		t.Errorf("Orphans = %v", d.Orphans)
	}
}

func TestDiffFullSyncForcesChanged(t *testing.T) {
	s, _ := Load(t.TempDir(), "main")
	s.Put("same", Record{Fingerprint: "fp"})
	set := &types.TaskSet{Tasks: []*types.Task{{ID: "same"}}}

	d := s.Diff(set, map[string]string{"same": "fp"}, true)
	if len(d.Changed) != 1 || len(d.Unchanged) != 0 {
		t.Errorf("full sync should classify tracked tasks as changed: %+v", d)
	}
}

func TestDiffChildKeys(t *testing.T) {
	s, _ := Load(t.TempDir(), "main")
	s.Put("p1", Record{Fingerprint: "fp"})
	s.Put(ChildKey("p1", "c1"), Record{})
	s.Put(ChildKey("dead", "c1"), Record{})

	set := &types.TaskSet{Tasks: []*types.Task{{ID: "p1"}}}
	d := s.Diff(set, map[string]string{"p1": "fp"}, false)

	if len(d.Orphans) != 1 || d.Orphans[0] != ChildKey("dead", "c1") {
		t.Errorf("Orphans = %v, want only the dead parent's child", d.Orphans)
	}
}

func TestChildKeys(t *testing.T) {
	s, _ := Load(t.TempDir(), "main")
	s.Put(ChildKey("p", "a"), Record{})
	s.Put(ChildKey("p", "b"), Record{})
	s.Put(ChildKey("q", "a"), Record{})
	s.Put("p", Record{})

	keys := s.ChildKeys("p")
	if len(keys) != 2 {
		t.Errorf("ChildKeys(p) = %v", keys)
	}

	parent, child, ok := SplitChildKey(ChildKey("p", "a"))
	if !ok || parent != "p" || child != "a" {
		t.Errorf("SplitChildKey = %q %q %v", parent, child, ok)
	}
	if _, _, ok := SplitChildKey("plain"); ok {
		t.Error("plain key misread as child key")
	}
}

func ids(tasks []*types.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
