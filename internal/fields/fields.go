// Package fields maintains the per-board catalog of custom fields: the
// mapping from logical field name to remote field and option identifiers.
// Required fields are created on demand when bootstrap is allowed, and the
// status mapping policy (the QA gate) lives here.
package fields

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// ErrOptionUnknown is returned when a single-select option cannot be
// resolved on the board.
var ErrOptionUnknown = errors.New("unknown select option")

// API is the slice of the remote client the catalog needs.
type API interface {
	ListFields(ctx context.Context, projectID string) ([]github.Field, error)
	CreateTextField(ctx context.Context, projectID, name string) (string, error)
	CreateSingleSelectField(ctx context.Context, projectID, name string, options []github.SelectOptionInput) (string, error)
	CreateFieldOption(ctx context.Context, projectID, fieldID, name, color string) (string, error)
}

// Status option names the engine manages. Done is listed so bootstrap can
// provision it, but the engine never assigns it: local "done" maps to
// QA Review and a human moves items to Done.
const (
	StatusTodo       = "Todo"
	StatusInProgress = "In Progress"
	StatusQAReview   = "QA Review"
	StatusDone       = "Done"
	StatusBlocked    = "Blocked"
	StatusDeferred   = "Deferred"
	StatusCancelled  = "Cancelled"
)

// requiredField describes one field the engine expects on every board.
type requiredField struct {
	name    string
	kind    github.FieldKind
	options []github.SelectOptionInput
}

var requiredFields = []requiredField{
	{name: github.FieldTMID, kind: github.FieldText},
	{name: github.FieldDependencies, kind: github.FieldText},
	{name: github.FieldTestStrategy, kind: github.FieldText},
	{name: github.FieldPriority, kind: github.FieldSingleSelect, options: []github.SelectOptionInput{
		{Name: "High", Color: "RED", Description: "High priority task"},
		{Name: "Medium", Color: "YELLOW", Description: "Medium priority task"},
		{Name: "Low", Color: "GREEN", Description: "Low priority task"},
	}},
	{name: github.FieldAgent, kind: github.FieldSingleSelect, options: []github.SelectOptionInput{
		{Name: "Unassigned", Color: "GRAY", Description: "No agent assigned"},
	}},
}

// requiredStatusOptions must exist on the board's built-in Status field.
var requiredStatusOptions = []github.SelectOptionInput{
	{Name: StatusTodo, Color: "GRAY", Description: "Task is pending"},
	{Name: StatusInProgress, Color: "YELLOW", Description: "Task is in progress"},
	{Name: StatusQAReview, Color: "BLUE", Description: "Task completed, awaiting QA approval"},
	{Name: StatusDone, Color: "GREEN", Description: "Task completed and QA approved"},
}

// Catalog caches field descriptors for one board. Read-mostly: lookups take
// the lock briefly, the remote is consulted only on miss or invalidation.
type Catalog struct {
	api       API
	projectID string

	mu        sync.Mutex
	byName    map[string]github.Field
	refreshed bool // one rebuild per run on schema drift
}

// New builds an empty catalog for the board.
func New(api API, projectID string) *Catalog {
	return &Catalog{
		api:       api,
		projectID: projectID,
		byName:    make(map[string]github.Field),
	}
}

// load fetches descriptors from the board. Caller holds c.mu.
func (c *Catalog) load(ctx context.Context) error {
	fieldList, err := c.api.ListFields(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("%w: listing fields: %v", types.ErrSchema, err)
	}
	c.byName = make(map[string]github.Field, len(fieldList))
	for _, f := range fieldList {
		c.byName[f.Name] = f
	}
	debug.Logf("field catalog loaded %d fields", len(fieldList))
	return nil
}

// EnsureAll resolves every required field, creating missing fields and
// missing required options when createMissing is set. With createMissing
// off (strict mode) a missing field is a fatal schema error. The agents
// list seeds the Agent field's option set.
func (c *Catalog) EnsureAll(ctx context.Context, agents []string, createMissing bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		return err
	}

	created := false
	for _, req := range requiredFields {
		if _, ok := c.byName[req.name]; ok {
			continue
		}
		if !createMissing {
			return fmt.Errorf("%w: required field %q is missing", types.ErrSchema, req.name)
		}
		if err := c.createField(ctx, req); err != nil {
			return err
		}
		created = true
	}
	if created {
		// Pick up the fresh field ids before touching options.
		if err := c.load(ctx); err != nil {
			return err
		}
	}

	// Status is built into every board; it cannot be created, only extended.
	status, ok := c.byName[github.FieldStatus]
	if !ok {
		return fmt.Errorf("%w: board has no Status field", types.ErrSchema)
	}
	for _, opt := range requiredStatusOptions {
		if hasOption(status, opt.Name) {
			continue
		}
		if !createMissing {
			return fmt.Errorf("%w: Status option %q is missing", types.ErrSchema, opt.Name)
		}
		if _, err := c.api.CreateFieldOption(ctx, c.projectID, status.ID, opt.Name, opt.Color); err != nil {
			return fmt.Errorf("%w: adding Status option %q: %v", types.ErrSchema, opt.Name, err)
		}
	}

	// Seed the Agent field with the configured agent names.
	if createMissing && len(agents) > 0 {
		agent := c.byName[github.FieldAgent]
		for _, name := range agents {
			if hasOption(agent, name) {
				continue
			}
			if _, err := c.api.CreateFieldOption(ctx, c.projectID, agent.ID, name, "GRAY"); err != nil {
				return fmt.Errorf("%w: adding Agent option %q: %v", types.ErrSchema, name, err)
			}
		}
	}

	// Reload so freshly created ids and options are cached.
	return c.load(ctx)
}

func (c *Catalog) createField(ctx context.Context, req requiredField) error {
	debug.Logf("creating missing field %q (%s)", req.name, req.kind)
	var err error
	switch req.kind {
	case github.FieldSingleSelect:
		_, err = c.api.CreateSingleSelectField(ctx, c.projectID, req.name, req.options)
	default:
		_, err = c.api.CreateTextField(ctx, c.projectID, req.name)
	}
	if err != nil {
		return fmt.Errorf("%w: creating field %q: %v", types.ErrSchema, req.name, err)
	}
	return nil
}

// Field returns the descriptor for a logical field name.
func (c *Catalog) Field(name string) (github.Field, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byName[name]
	if !ok {
		return github.Field{}, fmt.Errorf("%w: field %q not in catalog", types.ErrSchema, name)
	}
	return f, nil
}

// OptionID resolves a single-select option id by name, case-insensitively.
func (c *Catalog) OptionID(fieldName, optionName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byName[fieldName]
	if !ok {
		return "", fmt.Errorf("%w: field %q not in catalog", types.ErrSchema, fieldName)
	}
	for _, opt := range f.Options {
		if strings.EqualFold(opt.Name, optionName) {
			return opt.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q on field %q", ErrOptionUnknown, optionName, fieldName)
}

// HasOption reports whether the field carries the named option.
func (c *Catalog) HasOption(fieldName, optionName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hasOption(c.byName[fieldName], optionName)
}

// EnsureOption resolves an option id, creating the option when absent. Only
// the Agent field is open-ended; Status and Priority option sets are policy
// controlled and an unknown option there stays an error.
func (c *Catalog) EnsureOption(ctx context.Context, fieldName, optionName string) (string, error) {
	id, err := c.OptionID(fieldName, optionName)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrOptionUnknown) || fieldName != github.FieldAgent {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.byName[fieldName]
	newID, err := c.api.CreateFieldOption(ctx, c.projectID, f.ID, optionName, "GRAY")
	if err != nil {
		return "", fmt.Errorf("creating option %q on %q: %w", optionName, fieldName, err)
	}
	f.Options = append(f.Options, github.FieldOption{ID: newID, Name: optionName})
	c.byName[fieldName] = f
	return newID, nil
}

// Refresh rebuilds the cache from the board. Used when the remote reports
// schema drift mid-run; only the first call per run hits the API again.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshed {
		return nil
	}
	c.refreshed = true
	return c.load(ctx)
}

func hasOption(f github.Field, name string) bool {
	for _, opt := range f.Options {
		if strings.EqualFold(opt.Name, name) {
			return true
		}
	}
	return false
}
