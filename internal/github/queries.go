package github

import (
	"context"
	"fmt"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// GetProject resolves a board by owner login and number. Organization
// projects are tried first, then user projects.
func (c *Client) GetProject(ctx context.Context, owner string, number int) (*Project, error) {
	const query = `
		query($owner: String!, $number: Int!) {
			organization(login: $owner) {
				projectV2(number: $number) { id number title url }
			}
		}`

	var out struct {
		Organization struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"organization"`
	}
	err := c.do(ctx, "getProject", query, map[string]any{"owner": owner, "number": number}, &out)
	if err == nil && out.Organization.ProjectV2 != nil {
		return out.Organization.ProjectV2, nil
	}

	const userQuery = `
		query($owner: String!, $number: Int!) {
			user(login: $owner) {
				projectV2(number: $number) { id number title url }
			}
		}`
	var userOut struct {
		User struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"user"`
	}
	userErr := c.do(ctx, "getProject", userQuery, map[string]any{"owner": owner, "number": number}, &userOut)
	if userErr == nil && userOut.User.ProjectV2 != nil {
		return userOut.User.ProjectV2, nil
	}

	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: project #%d under %q", types.ErrBoardNotFound, number, owner)
}

// itemNode mirrors one item of the paginated items query.
type itemNode struct {
	ID      string `json:"id"`
	Content struct {
		Typename string `json:"__typename"`
		ID       string `json:"id"`
		Title    string `json:"title"`
		Body     string `json:"body"`
	} `json:"content"`
	FieldValues struct {
		Nodes []struct {
			Text  string `json:"text"`
			Name  string `json:"name"`
			Field struct {
				Name string `json:"name"`
			} `json:"field"`
		} `json:"nodes"`
	} `json:"fieldValues"`
}

func (n *itemNode) toItem() *Item {
	it := &Item{
		ID:          n.ID,
		ContentID:   n.Content.ID,
		Title:       n.Content.Title,
		Body:        n.Content.Body,
		FieldValues: make(map[string]string),
	}
	if n.Content.Typename == "DraftIssue" {
		it.ContentKind = types.KindDraft
	} else {
		it.ContentKind = types.KindIssue
	}
	for _, fv := range n.FieldValues.Nodes {
		if fv.Field.Name == "" {
			continue
		}
		if fv.Text != "" {
			it.FieldValues[fv.Field.Name] = fv.Text
		} else if fv.Name != "" {
			it.FieldValues[fv.Field.Name] = fv.Name
		}
	}
	return it
}

// ListItems pages through every item on the board, in board order. The full
// result is materialized; boards the engine manages stay well under the size
// where streaming would matter.
func (c *Client) ListItems(ctx context.Context, projectID string) ([]*Item, error) {
	const query = `
		query($projectId: ID!, $cursor: String) {
			node(id: $projectId) {
				... on ProjectV2 {
					items(first: 100, after: $cursor) {
						pageInfo { hasNextPage endCursor }
						nodes {
							id
							content {
								__typename
								... on DraftIssue { id title body }
								... on Issue { id title body }
								... on PullRequest { id title body }
							}
							fieldValues(first: 30) {
								nodes {
									... on ProjectV2ItemFieldTextValue {
										text
										field { ... on ProjectV2Field { name } }
									}
									... on ProjectV2ItemFieldSingleSelectValue {
										name
										field { ... on ProjectV2SingleSelectField { name } }
									}
								}
							}
						}
					}
				}
			}
		}`

	var items []*Item
	var cursor *string
	for {
		vars := map[string]any{"projectId": projectID}
		if cursor != nil {
			vars["cursor"] = *cursor
		}
		var out struct {
			Node struct {
				Items struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []itemNode `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}
		if err := c.do(ctx, "listItems", query, vars, &out); err != nil {
			return nil, err
		}
		for i := range out.Node.Items.Nodes {
			items = append(items, out.Node.Items.Nodes[i].toItem())
		}
		if !out.Node.Items.PageInfo.HasNextPage {
			return items, nil
		}
		cursor = &out.Node.Items.PageInfo.EndCursor
	}
}

// ListFields returns the board's field descriptors, including single-select
// options.
func (c *Client) ListFields(ctx context.Context, projectID string) ([]Field, error) {
	const query = `
		query($projectId: ID!) {
			node(id: $projectId) {
				... on ProjectV2 {
					fields(first: 100) {
						nodes {
							... on ProjectV2Field { id name dataType }
							... on ProjectV2SingleSelectField {
								id name dataType
								options { id name }
							}
						}
					}
				}
			}
		}`

	var out struct {
		Node struct {
			Fields struct {
				Nodes []Field `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	if err := c.do(ctx, "listFields", query, map[string]any{"projectId": projectID}, &out); err != nil {
		return nil, err
	}

	fields := out.Node.Fields.Nodes[:0]
	for _, f := range out.Node.Fields.Nodes {
		// Inline fragments on other field types decode as empty structs.
		if f.ID != "" {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// GetRepositoryID resolves a repository node id from "owner/name".
func (c *Client) GetRepositoryID(ctx context.Context, owner, name string) (string, error) {
	const query = `
		query($owner: String!, $name: String!) {
			repository(owner: $owner, name: $name) { id }
		}`

	var out struct {
		Repository struct {
			ID string `json:"id"`
		} `json:"repository"`
	}
	if err := c.do(ctx, "getRepositoryID", query, map[string]any{"owner": owner, "name": name}, &out); err != nil {
		return "", err
	}
	if out.Repository.ID == "" {
		return "", &APIError{Operation: "getRepositoryID", Code: "NOT_FOUND",
			Message: fmt.Sprintf("repository %s/%s not found", owner, name)}
	}
	return out.Repository.ID, nil
}

// GetUserID resolves a user node id from a login.
func (c *Client) GetUserID(ctx context.Context, login string) (string, error) {
	const query = `
		query($login: String!) {
			user(login: $login) { id }
		}`

	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := c.do(ctx, "getUserID", query, map[string]any{"login": login}, &out); err != nil {
		return "", err
	}
	if out.User.ID == "" {
		return "", &APIError{Operation: "getUserID", Code: "NOT_FOUND",
			Message: fmt.Sprintf("user %q not found", login)}
	}
	return out.User.ID, nil
}

// GetOwnerID resolves an organization or user login to its node id, for
// project creation.
func (c *Client) GetOwnerID(ctx context.Context, login string) (string, error) {
	const query = `
		query($login: String!) {
			repositoryOwner(login: $login) { id }
		}`

	var out struct {
		RepositoryOwner struct {
			ID string `json:"id"`
		} `json:"repositoryOwner"`
	}
	if err := c.do(ctx, "getOwnerID", query, map[string]any{"login": login}, &out); err != nil {
		return "", err
	}
	if out.RepositoryOwner.ID == "" {
		return "", &APIError{Operation: "getOwnerID", Code: "NOT_FOUND",
			Message: fmt.Sprintf("owner %q not found", login)}
	}
	return out.RepositoryOwner.ID, nil
}
