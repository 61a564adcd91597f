package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// fakeItem is one board item in the in-memory board.
type fakeItem struct {
	id        string
	contentID string
	kind      types.ContentKind
	title     string
	body      string
	values    map[string]string // by field name
}

// fakeRemote is an in-memory Projects v2 board implementing Remote. It
// enforces the draft/issue split on body updates so a mixed-up mutation
// path fails the test instead of silently passing.
type fakeRemote struct {
	mu      sync.Mutex
	project *github.Project
	fields  map[string]github.Field
	items   []*fakeItem
	issues  map[string]bool // pending issue content ids
	nextID  int

	// failure hooks; nil means succeed.
	failUpdateField func(it *fakeItem, fieldName string) error
	failCreateItem  func(title string) error
	failDelete      func(itemID string) error

	deleted       []string
	mutations     int
	createdFields []string
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{
		project: &github.Project{ID: "P1", Number: 42, Title: "Test Board", URL: "https://example.test/42"},
		fields:  make(map[string]github.Field),
		issues:  make(map[string]bool),
	}
	f.fields[github.FieldStatus] = github.Field{
		ID:   "F-status",
		Name: github.FieldStatus,
		Kind: github.FieldSingleSelect,
		Options: []github.FieldOption{
			{ID: "O-todo", Name: "Todo"},
			{ID: "O-prog", Name: "In Progress"},
			{ID: "O-done", Name: "Done"},
		},
	}
	return f
}

func (f *fakeRemote) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRemote) Concurrency() int { return 8 }

func (f *fakeRemote) GetProject(ctx context.Context, owner string, number int) (*github.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if number != f.project.Number {
		return nil, fmt.Errorf("%w: project #%d", types.ErrBoardNotFound, number)
	}
	p := *f.project
	return &p, nil
}

func (f *fakeRemote) ListItems(ctx context.Context, projectID string) ([]*github.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*github.Item, 0, len(f.items))
	for _, it := range f.items {
		values := make(map[string]string, len(it.values))
		for k, v := range it.values {
			values[k] = v
		}
		out = append(out, &github.Item{
			ID:          it.id,
			ContentID:   it.contentID,
			ContentKind: it.kind,
			Title:       it.title,
			Body:        it.body,
			FieldValues: values,
		})
	}
	return out, nil
}

func (f *fakeRemote) ListFields(ctx context.Context, projectID string) ([]github.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []github.Field
	for _, fd := range f.fields {
		out = append(out, fd)
	}
	return out, nil
}

func (f *fakeRemote) CreateDraftItem(ctx context.Context, projectID, title, body string) (*github.CreateItemResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateItem != nil {
		if err := f.failCreateItem(title); err != nil {
			return nil, err
		}
	}
	it := &fakeItem{
		id:        f.id("item"),
		contentID: f.id("draft"),
		kind:      types.KindDraft,
		title:     title,
		body:      body,
		values:    make(map[string]string),
	}
	f.items = append(f.items, it)
	f.mutations++
	return &github.CreateItemResult{ItemID: it.id, ContentID: it.contentID}, nil
}

func (f *fakeRemote) CreateIssue(ctx context.Context, repositoryID, title, body string, assigneeIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateItem != nil {
		if err := f.failCreateItem(title); err != nil {
			return "", err
		}
	}
	issueID := f.id("issue")
	f.issues[issueID] = true
	it := &fakeItem{
		contentID: issueID,
		kind:      types.KindIssue,
		title:     title,
		body:      body,
		values:    make(map[string]string),
	}
	f.items = append(f.items, it)
	f.mutations++
	return issueID, nil
}

func (f *fakeRemote) AddIssueToProject(ctx context.Context, projectID, issueID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.contentID == issueID && it.id == "" {
			it.id = f.id("item")
			f.mutations++
			return it.id, nil
		}
	}
	return "", fmt.Errorf("issue %s not found", issueID)
}

func (f *fakeRemote) UpdateFieldValue(ctx context.Context, projectID, itemID, fieldID string, value github.FieldValueInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var field *github.Field
	for name := range f.fields {
		fd := f.fields[name]
		if fd.ID == fieldID {
			field = &fd
			break
		}
	}
	if field == nil {
		return &github.APIError{Operation: "updateFieldValue", Code: "NOT_FOUND", Message: "no such field"}
	}
	it := f.item(itemID)
	if it == nil {
		return &github.APIError{Operation: "updateFieldValue", Code: "NOT_FOUND", Message: "no such item"}
	}
	if f.failUpdateField != nil {
		if err := f.failUpdateField(it, field.Name); err != nil {
			return err
		}
	}

	switch {
	case value.Text != nil:
		it.values[field.Name] = *value.Text
	case value.SingleSelectOption != "":
		for _, opt := range field.Options {
			if opt.ID == value.SingleSelectOption {
				it.values[field.Name] = opt.Name
				f.mutations++
				return nil
			}
		}
		return &github.APIError{Operation: "updateFieldValue", Code: "UNPROCESSABLE", Message: "unknown option id"}
	case value.Number != nil:
		it.values[field.Name] = fmt.Sprintf("%v", *value.Number)
	}
	f.mutations++
	return nil
}

func (f *fakeRemote) UpdateDraftBody(ctx context.Context, itemID, contentID, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.item(itemID)
	if it == nil {
		return &github.APIError{Operation: "updateDraftBody", Code: "NOT_FOUND", Message: "no such item"}
	}
	if it.kind != types.KindDraft {
		return &github.APIError{Operation: "updateDraftBody", Code: "UNPROCESSABLE",
			Message: "draft mutation against issue-backed item"}
	}
	it.title, it.body = title, body
	f.mutations++
	return nil
}

func (f *fakeRemote) UpdateIssueBody(ctx context.Context, itemID, issueID, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.item(itemID)
	if it == nil {
		return &github.APIError{Operation: "updateIssueBody", Code: "NOT_FOUND", Message: "no such item"}
	}
	if it.kind != types.KindIssue {
		return &github.APIError{Operation: "updateIssueBody", Code: "UNPROCESSABLE",
			Message: "issue mutation against draft item"}
	}
	it.title, it.body = title, body
	f.mutations++
	return nil
}

func (f *fakeRemote) DeleteItem(ctx context.Context, projectID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		if err := f.failDelete(itemID); err != nil {
			return err
		}
	}
	for i, it := range f.items {
		if it.id == itemID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			f.deleted = append(f.deleted, itemID)
			f.mutations++
			return nil
		}
	}
	return &github.APIError{Operation: "deleteItem", Code: "NOT_FOUND", Message: "no such item"}
}

func (f *fakeRemote) CreateTextField(ctx context.Context, projectID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("F")
	f.fields[name] = github.Field{ID: id, Name: name, Kind: github.FieldText}
	f.createdFields = append(f.createdFields, name)
	return id, nil
}

func (f *fakeRemote) CreateSingleSelectField(ctx context.Context, projectID, name string, options []github.SelectOptionInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("F")
	fd := github.Field{ID: id, Name: name, Kind: github.FieldSingleSelect}
	for _, opt := range options {
		fd.Options = append(fd.Options, github.FieldOption{ID: f.id("O"), Name: opt.Name})
	}
	f.fields[name] = fd
	f.createdFields = append(f.createdFields, name)
	return id, nil
}

func (f *fakeRemote) CreateFieldOption(ctx context.Context, projectID, fieldID, name, color string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fname, fd := range f.fields {
		if fd.ID == fieldID {
			id := f.id("O")
			fd.Options = append(fd.Options, github.FieldOption{ID: id, Name: name})
			f.fields[fname] = fd
			return id, nil
		}
	}
	return "", &github.APIError{Operation: "createFieldOption", Code: "NOT_FOUND", Message: "no such field"}
}

func (f *fakeRemote) GetRepositoryID(ctx context.Context, owner, name string) (string, error) {
	return "repo-" + owner + "-" + name, nil
}

func (f *fakeRemote) GetUserID(ctx context.Context, login string) (string, error) {
	return "user-" + login, nil
}

func (f *fakeRemote) GetOwnerID(ctx context.Context, login string) (string, error) {
	return "owner-" + login, nil
}

func (f *fakeRemote) CreateProject(ctx context.Context, ownerID, title string) (*github.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.project = &github.Project{ID: "P1", Number: 99, Title: title, URL: "https://example.test/99"}
	f.mutations++
	p := *f.project
	return &p, nil
}

// item finds a board item by id. Caller holds f.mu.
func (f *fakeRemote) item(itemID string) *fakeItem {
	for _, it := range f.items {
		if it.id == itemID {
			return it
		}
	}
	return nil
}

// byTMID finds a board item by its identity marker.
func (f *fakeRemote) byTMID(tmid string) *fakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.values[github.FieldTMID] == tmid {
			return it
		}
	}
	return nil
}

// addItem seeds the board with a pre-existing item.
func (f *fakeRemote) addItem(title, body string, values map[string]string) *fakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if values == nil {
		values = make(map[string]string)
	}
	it := &fakeItem{
		id:        f.id("item"),
		contentID: f.id("draft"),
		kind:      types.KindDraft,
		title:     title,
		body:      body,
		values:    values,
	}
	f.items = append(f.items, it)
	return it
}
