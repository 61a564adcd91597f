package fields

import (
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// StatusOption maps a local task status to the board's Status option name.
//
// The done → QA Review mapping is deliberate and not configurable: the Done
// option is reserved for a human or QA actor, so automated syncs can never
// mark work as approved. Blocked, deferred and cancelled map to the matching
// option when the board carries one, and to Todo otherwise.
func (c *Catalog) StatusOption(s types.Status) string {
	switch s {
	case types.StatusInProgress:
		return StatusInProgress
	case types.StatusDone:
		return StatusQAReview
	case types.StatusBlocked:
		return c.optionOrTodo(StatusBlocked)
	case types.StatusDeferred:
		return c.optionOrTodo(StatusDeferred)
	case types.StatusCancelled:
		return c.optionOrTodo(StatusCancelled)
	default:
		return StatusTodo
	}
}

// optionOrTodo returns name when the board's Status field carries that
// option, falling back to Todo.
func (c *Catalog) optionOrTodo(name string) string {
	if c.HasOption(github.FieldStatus, name) {
		return name
	}
	return StatusTodo
}

// PriorityOption maps a local priority to the board's Priority option name.
// An empty return means the field is left unset.
func PriorityOption(p types.Priority) string {
	switch p {
	case types.PriorityHigh:
		return "High"
	case types.PriorityMedium:
		return "Medium"
	case types.PriorityLow:
		return "Low"
	default:
		return ""
	}
}
