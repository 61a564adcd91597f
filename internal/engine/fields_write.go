package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/5dlabs/taskmaster-sync/internal/agents"
	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/fields"
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// writeFields reconciles the managed custom fields of one item. With
// observed values supplied, only drifted fields are written; writeAll
// forces every field (creates and full sync). TM_ID is handled separately
// by setTMID because of its verification retry.
func (e *Engine) writeFields(ctx context.Context, itemID string, t *types.Task,
	assignment agents.Assignment, observed map[string]string, writeAll bool) error {

	var errs []error

	write := func(fieldName, desired string, value func(optionID string) github.FieldValueInput, selectField bool) {
		if desired == "" {
			// Select fields are left alone when nothing is desired; text
			// fields are cleared only if the board still shows a value.
			if selectField || strings.TrimSpace(observed[fieldName]) == "" {
				return
			}
		}
		if !writeAll {
			if cur, ok := observed[fieldName]; ok && strings.EqualFold(strings.TrimSpace(cur), desired) {
				return
			}
		}

		var input github.FieldValueInput
		if selectField {
			optionID, err := e.catalog.EnsureOption(ctx, fieldName, desired)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %s: %w", fieldName, err))
				return
			}
			input = value(optionID)
		} else {
			input = value("")
		}
		if err := e.updateField(ctx, itemID, fieldName, input); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", fieldName, err))
		}
	}

	text := func(s string) func(string) github.FieldValueInput {
		return func(string) github.FieldValueInput { return github.TextValue(s) }
	}
	option := func(id string) github.FieldValueInput { return github.OptionValue(id) }

	deps := dependenciesValue(t)
	write(github.FieldDependencies, deps, text(deps), false)
	write(github.FieldTestStrategy, t.TestStrategy, text(t.TestStrategy), false)
	write(github.FieldPriority, fields.PriorityOption(t.Priority), option, true)
	write(github.FieldAgent, assignment.Option, option, true)

	// Status carries the QA gate: a done task maps to QA Review, and an
	// item a human already moved to Done is never pulled back.
	status := e.catalog.StatusOption(t.Status)
	if t.Status == types.StatusDone && strings.EqualFold(observed[github.FieldStatus], fields.StatusDone) {
		debug.Logf("item %s already Done on board, leaving status untouched", itemID)
	} else {
		write(github.FieldStatus, status, option, true)
	}

	return errors.Join(errs...)
}

// writeChildStatus sets the Status field on a separate-mode child item.
func (e *Engine) writeChildStatus(ctx context.Context, itemID string, s types.Status) error {
	optionID, err := e.catalog.OptionID(github.FieldStatus, e.catalog.StatusOption(s))
	if err != nil {
		return err
	}
	return e.updateField(ctx, itemID, github.FieldStatus, github.OptionValue(optionID))
}

// updateField writes one field value, refreshing the catalog once when the
// remote reports the field id stale (schema drift since the catalog load).
func (e *Engine) updateField(ctx context.Context, itemID, fieldName string, value github.FieldValueInput) error {
	f, err := e.catalog.Field(fieldName)
	if err != nil {
		return err
	}
	err = e.remote.UpdateFieldValue(ctx, e.project.ID, itemID, f.ID, value)
	if !github.IsNotFound(err) {
		return err
	}

	debug.Logf("field %s looks stale, refreshing catalog once", fieldName)
	if refreshErr := e.catalog.Refresh(ctx); refreshErr != nil {
		return errors.Join(err, refreshErr)
	}
	f, ferr := e.catalog.Field(fieldName)
	if ferr != nil {
		return errors.Join(err, ferr)
	}
	return e.remote.UpdateFieldValue(ctx, e.project.ID, itemID, f.ID, value)
}

// setTMID writes the identity marker and retries once on failure. An item
// without its TM_ID would surface as a duplicate on the next re-anchor, so
// this write gets its own persistence.
func (e *Engine) setTMID(ctx context.Context, itemID, value string) error {
	err := e.updateField(ctx, itemID, github.FieldTMID, github.TextValue(value))
	if err == nil {
		return nil
	}
	debug.Logf("TM_ID write failed for item %s, retrying once: %v", itemID, err)
	if err := e.updateField(ctx, itemID, github.FieldTMID, github.TextValue(value)); err != nil {
		return fmt.Errorf("setting TM_ID (item may duplicate on re-anchor): %w", err)
	}
	return nil
}
