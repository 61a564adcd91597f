// Package github is the sole boundary to the GitHub Projects v2 GraphQL
// surface. It owns authentication via the external gh helper, retry and
// rate-limit policy, pagination, and per-item mutation serialization.
package github

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Project is a Projects v2 board.
type Project struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Item is one unit of work on a board.
type Item struct {
	ID string
	// ContentID is the DraftIssue or Issue node id behind the item. Body
	// updates target the content, not the item.
	ContentID   string
	ContentKind types.ContentKind
	Title       string
	Body        string
	// FieldValues maps field name to the observed value (text content or
	// single-select option name).
	FieldValues map[string]string
}

// TMID returns the identity marker value carried on the item, if any.
func (it *Item) TMID() string {
	return it.FieldValues[FieldTMID]
}

// FieldKind is the data type of a board field.
type FieldKind string

const (
	FieldText         FieldKind = "TEXT"
	FieldNumber       FieldKind = "NUMBER"
	FieldDate         FieldKind = "DATE"
	FieldSingleSelect FieldKind = "SINGLE_SELECT"
	FieldIteration    FieldKind = "ITERATION"
	FieldTitle        FieldKind = "TITLE"
	FieldAssignees    FieldKind = "ASSIGNEES"
)

// Logical field names the engine manages on every board.
const (
	FieldTMID         = "TM_ID"
	FieldStatus       = "Status"
	FieldPriority     = "Priority"
	FieldAgent        = "Agent"
	FieldDependencies = "Dependencies"
	FieldTestStrategy = "Test Strategy"
)

// Field describes one board field.
type Field struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Kind    FieldKind     `json:"dataType"`
	Options []FieldOption `json:"options,omitempty"`
}

// FieldOption is one choice of a single-select field.
type FieldOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FieldValueInput is the polymorphic value accepted by the field-update
// mutation. Exactly one member is set.
type FieldValueInput struct {
	Text               *string  `json:"text,omitempty"`
	Number             *float64 `json:"number,omitempty"`
	Date               *string  `json:"date,omitempty"`
	SingleSelectOption string   `json:"singleSelectOptionId,omitempty"`
}

// TextValue builds a text field input.
func TextValue(s string) FieldValueInput { return FieldValueInput{Text: &s} }

// NumberValue builds a number field input.
func NumberValue(n float64) FieldValueInput { return FieldValueInput{Number: &n} }

// OptionValue builds a single-select field input.
func OptionValue(optionID string) FieldValueInput {
	return FieldValueInput{SingleSelectOption: optionID}
}

// graphQLError is one entry of a GraphQL error response. GitHub reports a
// machine-readable code in "type".
type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Path    []any  `json:"path"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// APIError is a terminal GraphQL error surfaced to callers.
type APIError struct {
	Operation string
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Operation, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// IsNotFound reports whether err is a terminal NOT_FOUND from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "NOT_FOUND"
}
