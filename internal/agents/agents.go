// Package agents maps a task's declared owner to a board agent: the Agent
// single-select option name plus, for issue-backed items, the remote login
// to assign. Resolution is pure rule evaluation; nothing here talks to the
// remote side.
//
// The rule set loads from .taskmaster/agents.yaml:
//
//	agents:
//	  backend:
//	    option: Backend
//	    login: backend-bot
//	    aliases: [be, api]
//	  qa:
//	    option: QA
//	    login: qa-bot
//	rules:
//	  - field: title
//	    contains: "migration"
//	    agent: backend
//	    priority: 10
//	default: backend
package agents

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Agent is one configured identity.
type Agent struct {
	// Option is the Agent field's single-select option name.
	Option string `yaml:"option"`
	// Login is the remote account to assign on issue-backed items.
	Login string `yaml:"login,omitempty"`
	// Aliases are alternative owner spellings that resolve to this agent.
	Aliases []string `yaml:"aliases,omitempty"`
}

// Rule matches a task field against a predicate and names a target agent.
// Higher priority fires first; the first match wins.
type Rule struct {
	Field    string `yaml:"field"`    // title, description, id, priority, status
	Contains string `yaml:"contains,omitempty"`
	Equals   string `yaml:"equals,omitempty"`
	Agent    string `yaml:"agent"`
	Priority int    `yaml:"priority"`
}

// Config is the complete rule set.
type Config struct {
	Agents  map[string]Agent `yaml:"agents"`
	Rules   []Rule           `yaml:"rules,omitempty"`
	Default string           `yaml:"default,omitempty"`
}

// Assignment is the resolver's output.
type Assignment struct {
	// Option is the Agent field option to set; empty leaves the field unset.
	Option string
	// Login is the account to assign on issue-backed items, if known.
	Login string
}

// Resolver evaluates the rule set for tasks.
type Resolver struct {
	cfg Config
	// rules sorted by descending priority, stable within equal priority.
	sorted []Rule
}

// Load reads the rule set from a YAML file. A missing file yields an empty
// resolver (every task resolves to no assignment).
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return New(Config{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", types.ErrConfig, path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", types.ErrConfig, path, err)
	}
	return New(cfg), nil
}

// New builds a resolver from an in-memory rule set.
func New(cfg Config) *Resolver {
	r := &Resolver{cfg: cfg}
	r.sorted = make([]Rule, len(cfg.Rules))
	copy(r.sorted, cfg.Rules)
	sort.SliceStable(r.sorted, func(i, j int) bool {
		return r.sorted[i].Priority > r.sorted[j].Priority
	})
	return r
}

// Resolve determines the assignment for a task. An explicit owner wins over
// rules; rules fire in priority order; the default applies last.
func (r *Resolver) Resolve(t *types.Task) Assignment {
	if t.Assignee != "" {
		if a, ok := r.lookup(t.Assignee); ok {
			return a
		}
		// Unknown owner: surface it verbatim as the option so the board
		// still shows who the file named.
		return Assignment{Option: t.Assignee}
	}

	for _, rule := range r.sorted {
		if r.matches(rule, t) {
			if a, ok := r.lookup(rule.Agent); ok {
				return a
			}
		}
	}

	if a, ok := r.lookup(r.cfg.Default); ok {
		return a
	}
	return Assignment{}
}

// OptionNames lists every configured agent's option name, sorted, for
// seeding the board's Agent field.
func (r *Resolver) OptionNames() []string {
	var names []string
	for _, a := range r.cfg.Agents {
		if a.Option != "" {
			names = append(names, a.Option)
		}
	}
	sort.Strings(names)
	return names
}

// QA returns the assignment for the QA actor, used to route items entering
// QA Review on issue-backed boards. ok is false when no qa agent is
// configured.
func (r *Resolver) QA() (Assignment, bool) {
	a, ok := r.lookup("qa")
	return a, ok
}

// lookup resolves an agent name or alias to its assignment.
func (r *Resolver) lookup(name string) (Assignment, bool) {
	if name == "" {
		return Assignment{}, false
	}
	if a, ok := r.cfg.Agents[name]; ok {
		return Assignment{Option: a.Option, Login: a.Login}, true
	}
	lower := strings.ToLower(name)
	for _, a := range r.cfg.Agents {
		for _, alias := range a.Aliases {
			if strings.ToLower(alias) == lower {
				return Assignment{Option: a.Option, Login: a.Login}, true
			}
		}
	}
	return Assignment{}, false
}

func (r *Resolver) matches(rule Rule, t *types.Task) bool {
	var value string
	switch rule.Field {
	case "title":
		value = t.Title
	case "description":
		value = t.Description
	case "id":
		value = t.ID
	case "priority":
		value = string(t.Priority)
	case "status":
		value = string(t.Status)
	default:
		return false
	}

	if rule.Equals != "" {
		return strings.EqualFold(value, rule.Equals)
	}
	if rule.Contains != "" {
		return strings.Contains(strings.ToLower(value), strings.ToLower(rule.Contains))
	}
	return false
}
