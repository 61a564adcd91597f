package github

import (
	"context"
	"fmt"
)

// CreateItemResult carries the two ids produced by item creation: the
// project item id (used for field updates and deletion) and the content id
// (used for body updates).
type CreateItemResult struct {
	ItemID    string
	ContentID string
}

// CreateDraftItem adds a draft issue to the board.
func (c *Client) CreateDraftItem(ctx context.Context, projectID, title, body string) (*CreateItemResult, error) {
	const mutation = `
		mutation($projectId: ID!, $title: String!, $body: String!) {
			addProjectV2DraftIssue(input: {projectId: $projectId, title: $title, body: $body}) {
				projectItem {
					id
					content { ... on DraftIssue { id } }
				}
			}
		}`

	var out struct {
		AddProjectV2DraftIssue struct {
			ProjectItem struct {
				ID      string `json:"id"`
				Content struct {
					ID string `json:"id"`
				} `json:"content"`
			} `json:"projectItem"`
		} `json:"addProjectV2DraftIssue"`
	}
	vars := map[string]any{"projectId": projectID, "title": title, "body": body}
	if err := c.do(ctx, "createDraftItem", mutation, vars, &out); err != nil {
		return nil, err
	}
	c.mutations.Add(1)
	item := out.AddProjectV2DraftIssue.ProjectItem
	if item.ID == "" {
		return nil, &APIError{Operation: "createDraftItem", Message: "no item id in response"}
	}
	return &CreateItemResult{ItemID: item.ID, ContentID: item.Content.ID}, nil
}

// CreateIssue opens a repository issue. The returned id is the issue node
// id; pair with AddIssueToProject to place it on a board.
func (c *Client) CreateIssue(ctx context.Context, repositoryID, title, body string, assigneeIDs []string) (string, error) {
	const mutation = `
		mutation($repositoryId: ID!, $title: String!, $body: String!, $assigneeIds: [ID!]) {
			createIssue(input: {repositoryId: $repositoryId, title: $title, body: $body, assigneeIds: $assigneeIds}) {
				issue { id }
			}
		}`

	var out struct {
		CreateIssue struct {
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"createIssue"`
	}
	vars := map[string]any{
		"repositoryId": repositoryID,
		"title":        title,
		"body":         body,
		"assigneeIds":  assigneeIDs,
	}
	if err := c.do(ctx, "createIssue", mutation, vars, &out); err != nil {
		return "", err
	}
	c.mutations.Add(1)
	if out.CreateIssue.Issue.ID == "" {
		return "", &APIError{Operation: "createIssue", Message: "no issue id in response"}
	}
	return out.CreateIssue.Issue.ID, nil
}

// AddIssueToProject places an existing issue on the board and returns the
// project item id.
func (c *Client) AddIssueToProject(ctx context.Context, projectID, issueID string) (string, error) {
	const mutation = `
		mutation($projectId: ID!, $contentId: ID!) {
			addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
				item { id }
			}
		}`

	var out struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars := map[string]any{"projectId": projectID, "contentId": issueID}
	if err := c.do(ctx, "addIssueToProject", mutation, vars, &out); err != nil {
		return "", err
	}
	c.mutations.Add(1)
	if out.AddProjectV2ItemByID.Item.ID == "" {
		return "", &APIError{Operation: "addIssueToProject", Message: "no item id in response"}
	}
	return out.AddProjectV2ItemByID.Item.ID, nil
}

// UpdateFieldValue sets one field on one item. Calls for the same item are
// serialized to keep updates from racing each other.
func (c *Client) UpdateFieldValue(ctx context.Context, projectID, itemID, fieldID string, value FieldValueInput) error {
	const mutation = `
		mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
			updateProjectV2ItemFieldValue(input: {projectId: $projectId, itemId: $itemId, fieldId: $fieldId, value: $value}) {
				projectV2Item { id }
			}
		}`

	vars := map[string]any{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   fieldID,
		"value":     value,
	}
	return c.withItemLock(itemID, func() error {
		if err := c.do(ctx, "updateFieldValue", mutation, vars, nil); err != nil {
			return err
		}
		c.mutations.Add(1)
		return nil
	})
}

// UpdateDraftBody rewrites a draft item's title and body. Only valid for
// items created as drafts.
func (c *Client) UpdateDraftBody(ctx context.Context, itemID, contentID, title, body string) error {
	const mutation = `
		mutation($draftIssueId: ID!, $title: String!, $body: String!) {
			updateProjectV2DraftIssue(input: {draftIssueId: $draftIssueId, title: $title, body: $body}) {
				draftIssue { id }
			}
		}`

	vars := map[string]any{"draftIssueId": contentID, "title": title, "body": body}
	return c.withItemLock(itemID, func() error {
		if err := c.do(ctx, "updateDraftBody", mutation, vars, nil); err != nil {
			return err
		}
		c.mutations.Add(1)
		return nil
	})
}

// UpdateIssueBody rewrites an issue-backed item's title and body. Only valid
// for items created as repository issues.
func (c *Client) UpdateIssueBody(ctx context.Context, itemID, issueID, title, body string) error {
	const mutation = `
		mutation($issueId: ID!, $title: String!, $body: String!) {
			updateIssue(input: {id: $issueId, title: $title, body: $body}) {
				issue { id }
			}
		}`

	vars := map[string]any{"issueId": issueID, "title": title, "body": body}
	return c.withItemLock(itemID, func() error {
		if err := c.do(ctx, "updateIssueBody", mutation, vars, nil); err != nil {
			return err
		}
		c.mutations.Add(1)
		return nil
	})
}

// DeleteItem removes an item from the board. Issue-backed items keep their
// underlying issue; only the board entry goes away.
func (c *Client) DeleteItem(ctx context.Context, projectID, itemID string) error {
	const mutation = `
		mutation($projectId: ID!, $itemId: ID!) {
			deleteProjectV2Item(input: {projectId: $projectId, itemId: $itemId}) {
				deletedItemId
			}
		}`

	vars := map[string]any{"projectId": projectID, "itemId": itemID}
	return c.withItemLock(itemID, func() error {
		if err := c.do(ctx, "deleteItem", mutation, vars, nil); err != nil {
			return err
		}
		c.mutations.Add(1)
		return nil
	})
}

// CreateTextField adds a text field to the board.
func (c *Client) CreateTextField(ctx context.Context, projectID, name string) (string, error) {
	const mutation = `
		mutation($projectId: ID!, $name: String!) {
			createProjectV2Field(input: {projectId: $projectId, dataType: TEXT, name: $name}) {
				projectV2Field { ... on ProjectV2Field { id } }
			}
		}`

	var out struct {
		CreateProjectV2Field struct {
			ProjectV2Field struct {
				ID string `json:"id"`
			} `json:"projectV2Field"`
		} `json:"createProjectV2Field"`
	}
	vars := map[string]any{"projectId": projectID, "name": name}
	if err := c.do(ctx, "createTextField", mutation, vars, &out); err != nil {
		return "", err
	}
	c.mutations.Add(1)
	return out.CreateProjectV2Field.ProjectV2Field.ID, nil
}

// SelectOptionInput seeds one option of a new single-select field.
type SelectOptionInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CreateSingleSelectField adds a single-select field with the given options.
func (c *Client) CreateSingleSelectField(ctx context.Context, projectID, name string, options []SelectOptionInput) (string, error) {
	const mutation = `
		mutation($projectId: ID!, $name: String!, $options: [ProjectV2SingleSelectFieldOptionInput!]!) {
			createProjectV2Field(input: {projectId: $projectId, dataType: SINGLE_SELECT, name: $name, singleSelectOptions: $options}) {
				projectV2Field { ... on ProjectV2SingleSelectField { id } }
			}
		}`

	var out struct {
		CreateProjectV2Field struct {
			ProjectV2Field struct {
				ID string `json:"id"`
			} `json:"projectV2Field"`
		} `json:"createProjectV2Field"`
	}
	vars := map[string]any{"projectId": projectID, "name": name, "options": options}
	if err := c.do(ctx, "createSingleSelectField", mutation, vars, &out); err != nil {
		return "", err
	}
	c.mutations.Add(1)
	return out.CreateProjectV2Field.ProjectV2Field.ID, nil
}

// CreateFieldOption appends one option to an existing single-select field
// and returns the new option's id.
func (c *Client) CreateFieldOption(ctx context.Context, projectID, fieldID, name, color string) (string, error) {
	const mutation = `
		mutation($projectId: ID!, $fieldId: ID!, $option: ProjectV2SingleSelectFieldOptionInput!) {
			updateProjectV2Field(input: {projectId: $projectId, fieldId: $fieldId, singleSelectOptions: [$option]}) {
				projectV2Field {
					... on ProjectV2SingleSelectField {
						options { id name }
					}
				}
			}
		}`

	vars := map[string]any{
		"projectId": projectID,
		"fieldId":   fieldID,
		"option": SelectOptionInput{
			Name:        name,
			Color:       color,
			Description: fmt.Sprintf("%s option", name),
		},
	}
	var out struct {
		UpdateProjectV2Field struct {
			ProjectV2Field struct {
				Options []FieldOption `json:"options"`
			} `json:"projectV2Field"`
		} `json:"updateProjectV2Field"`
	}
	if err := c.do(ctx, "createFieldOption", mutation, vars, &out); err != nil {
		return "", err
	}
	c.mutations.Add(1)
	for _, opt := range out.UpdateProjectV2Field.ProjectV2Field.Options {
		if opt.Name == name {
			return opt.ID, nil
		}
	}
	return "", &APIError{Operation: "createFieldOption",
		Message: fmt.Sprintf("option %q missing from response", name)}
}

// CreateProject provisions a new board under the given owner.
func (c *Client) CreateProject(ctx context.Context, ownerID, title string) (*Project, error) {
	const mutation = `
		mutation($ownerId: ID!, $title: String!) {
			createProjectV2(input: {ownerId: $ownerId, title: $title}) {
				projectV2 { id number title url }
			}
		}`

	var out struct {
		CreateProjectV2 struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	vars := map[string]any{"ownerId": ownerID, "title": title}
	if err := c.do(ctx, "createProject", mutation, vars, &out); err != nil {
		return nil, err
	}
	c.mutations.Add(1)
	if out.CreateProjectV2.ProjectV2 == nil {
		return nil, &APIError{Operation: "createProject", Message: "no project in response"}
	}
	return out.CreateProjectV2.ProjectV2, nil
}
