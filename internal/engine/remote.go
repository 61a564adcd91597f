package engine

import (
	"context"

	"github.com/5dlabs/taskmaster-sync/internal/github"
)

// Remote is the slice of the GitHub client the engine drives. *github.Client
// satisfies it; tests substitute an in-memory board.
type Remote interface {
	GetProject(ctx context.Context, owner string, number int) (*github.Project, error)
	ListItems(ctx context.Context, projectID string) ([]*github.Item, error)
	ListFields(ctx context.Context, projectID string) ([]github.Field, error)

	CreateDraftItem(ctx context.Context, projectID, title, body string) (*github.CreateItemResult, error)
	CreateIssue(ctx context.Context, repositoryID, title, body string, assigneeIDs []string) (string, error)
	AddIssueToProject(ctx context.Context, projectID, issueID string) (string, error)
	UpdateFieldValue(ctx context.Context, projectID, itemID, fieldID string, value github.FieldValueInput) error
	UpdateDraftBody(ctx context.Context, itemID, contentID, title, body string) error
	UpdateIssueBody(ctx context.Context, itemID, issueID, title, body string) error
	DeleteItem(ctx context.Context, projectID, itemID string) error

	CreateTextField(ctx context.Context, projectID, name string) (string, error)
	CreateSingleSelectField(ctx context.Context, projectID, name string, options []github.SelectOptionInput) (string, error)
	CreateFieldOption(ctx context.Context, projectID, fieldID, name, color string) (string, error)

	GetRepositoryID(ctx context.Context, owner, name string) (string, error)
	GetUserID(ctx context.Context, login string) (string, error)
	GetOwnerID(ctx context.Context, login string) (string, error)
	CreateProject(ctx context.Context, ownerID, title string) (*github.Project, error)

	Concurrency() int
}
