package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

func testConfig() Config {
	return Config{
		Agents: map[string]Agent{
			"backend":  {Option: "Backend", Login: "backend-bot", Aliases: []string{"be", "api"}},
			"frontend": {Option: "Frontend", Login: "frontend-bot"},
			"qa":       {Option: "QA", Login: "qa-bot"},
		},
		Rules: []Rule{
			{Field: "title", Contains: "ui", Agent: "frontend", Priority: 5},
			{Field: "title", Contains: "migration", Agent: "backend", Priority: 10},
			{Field: "priority", Equals: "high", Agent: "backend", Priority: 1},
		},
		Default: "backend",
	}
}

func TestExplicitOwnerWins(t *testing.T) {
	r := New(testConfig())
	// Even though the title matches the frontend rule, the owner wins.
	a := r.Resolve(&types.Task{ID: "1", Title: "fix ui glitch", Assignee: "backend"})
	if a.Option != "Backend" || a.Login != "backend-bot" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestOwnerAliases(t *testing.T) {
	r := New(testConfig())
	a := r.Resolve(&types.Task{ID: "1", Title: "x", Assignee: "API"})
	if a.Option != "Backend" {
		t.Errorf("alias resolution failed: %+v", a)
	}
}

func TestUnknownOwnerSurfacesVerbatim(t *testing.T) {
	r := New(testConfig())
	a := r.Resolve(&types.Task{ID: "1", Title: "x", Assignee: "mystery"})
	if a.Option != "mystery" || a.Login != "" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestRulePriorityOrder(t *testing.T) {
	r := New(testConfig())
	// Matches both the ui rule (5) and the migration rule (10); higher
	// priority fires first.
	a := r.Resolve(&types.Task{ID: "1", Title: "ui migration"})
	if a.Option != "Backend" {
		t.Errorf("higher-priority rule lost: %+v", a)
	}
}

func TestRuleFieldPredicates(t *testing.T) {
	r := New(testConfig())

	a := r.Resolve(&types.Task{ID: "1", Title: "anything", Priority: types.PriorityHigh})
	if a.Option != "Backend" {
		t.Errorf("equals predicate failed: %+v", a)
	}

	a = r.Resolve(&types.Task{ID: "1", Title: "polish UI widgets"})
	if a.Option != "Frontend" {
		t.Errorf("contains predicate should be case-insensitive: %+v", a)
	}
}

func TestDefaultApplies(t *testing.T) {
	r := New(testConfig())
	a := r.Resolve(&types.Task{ID: "1", Title: "nothing matches"})
	if a.Option != "Backend" {
		t.Errorf("default not applied: %+v", a)
	}
}

func TestEmptyResolver(t *testing.T) {
	r := New(Config{})
	a := r.Resolve(&types.Task{ID: "1", Title: "x"})
	if a.Option != "" || a.Login != "" {
		t.Errorf("empty config should resolve to nothing: %+v", a)
	}
}

func TestQA(t *testing.T) {
	r := New(testConfig())
	qa, ok := r.QA()
	if !ok || qa.Login != "qa-bot" {
		t.Errorf("QA = %+v ok=%v", qa, ok)
	}

	if _, ok := New(Config{}).QA(); ok {
		t.Error("QA should be absent without configuration")
	}
}

func TestOptionNames(t *testing.T) {
	names := New(testConfig()).OptionNames()
	want := []string{"Backend", "Frontend", "QA"}
	if len(names) != len(want) {
		t.Fatalf("OptionNames = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("OptionNames = %v, want %v", names, want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `
agents:
  backend:
    option: Backend
    login: backend-bot
    aliases: [be]
rules:
  - field: title
    contains: server
    agent: backend
    priority: 1
default: backend
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := r.Resolve(&types.Task{ID: "1", Title: "server crash"})
	if a.Option != "Backend" || a.Login != "backend-bot" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if a := r.Resolve(&types.Task{ID: "1", Title: "x"}); a.Option != "" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
