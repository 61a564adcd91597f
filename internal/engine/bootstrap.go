package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/fields"
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Bootstrap provisions a new board owned by owner and installs the required
// field schema, including the QA Review status option. Each call creates a
// new board; the field and option steps check for existence first and skip
// what is already there.
func Bootstrap(ctx context.Context, remote Remote, owner, title string, agentNames []string) (*github.Project, error) {
	ownerID, err := remote.GetOwnerID(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("resolving owner %q: %w", owner, err)
	}
	project, err := remote.CreateProject(ctx, ownerID, title)
	if err != nil {
		return nil, fmt.Errorf("creating board: %w", err)
	}
	debug.Logf("created board %q (#%d)", project.Title, project.Number)

	catalog := fields.New(remote, project.ID)
	if err := catalog.EnsureAll(ctx, agentNames, true); err != nil {
		return nil, err
	}
	return project, nil
}

// SetupFields ensures an existing board carries the required field schema.
func SetupFields(ctx context.Context, remote Remote, projectID string, agentNames []string) error {
	catalog := fields.New(remote, projectID)
	return catalog.EnsureAll(ctx, agentNames, true)
}

// EnsureProject resolves the configured board, bootstrapping a new one when
// the board number is 0 or when autoCreate is set and the board is missing.
// created reports whether a new board was provisioned (so callers can write
// the number back into the sync config).
func EnsureProject(ctx context.Context, remote Remote, owner string, number int,
	autoCreate bool, title string, agentNames []string) (project *github.Project, created bool, err error) {

	if number > 0 {
		project, err = remote.GetProject(ctx, owner, number)
		if err == nil {
			return project, false, nil
		}
		if !errors.Is(err, types.ErrBoardNotFound) || !autoCreate {
			return nil, false, err
		}
		debug.Logf("board #%d not found, auto-creating", number)
	}

	project, err = Bootstrap(ctx, remote, owner, title, agentNames)
	if err != nil {
		return nil, false, err
	}
	return project, true, nil
}
