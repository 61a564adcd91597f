// Package subtasks projects a task's subtasks onto the board, either inline
// as a checklist in the parent body (nested mode) or as separate items
// linked back from the parent (separate mode).
//
// Rendering is deterministic and region-based: the generated section sits
// between stable marker lines so a later run can replace exactly that region
// without disturbing hand-edited text above it. The rendered form feeds the
// parent's fingerprint, which makes a subtask-mode switch register as a
// content change.
package subtasks

import (
	"fmt"
	"strings"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// Marker lines delimiting the generated region in an item body. Stable
// across versions; changing them would orphan every previously generated
// region.
const (
	BeginMarker = "<!-- tms:subtasks -->"
	EndMarker   = "<!-- /tms:subtasks -->"
)

// ChildSpec describes one separate-mode child item to create.
type ChildSpec struct {
	ChildID string
	Title   string
	Body    string
	Status  types.Status
}

// ChildLink names one already-created child for the parent's link list.
type ChildLink struct {
	ChildID string
	Title   string
	Status  types.Status
}

// glyph renders a checklist state marker.
func glyph(s types.Status) string {
	if s == types.StatusDone {
		return "[x]"
	}
	return "[ ]"
}

// Body renders the complete item body for a parent task in the given mode.
// For separate mode, links describes the task's children; it is ignored in
// nested mode.
func Body(t *types.Task, mode types.SubtaskMode, links []ChildLink) string {
	base := t.Body()
	if len(t.Subtasks) == 0 && len(links) == 0 {
		return base
	}

	var region string
	if mode == types.SubtasksSeparate {
		region = separateRegion(links)
	} else {
		region = nestedRegion(t.Subtasks)
	}
	return SpliceRegion(base, region)
}

// nestedRegion renders subtasks as a checklist, in source order.
func nestedRegion(subs []*types.Task) string {
	var b strings.Builder
	b.WriteString("## Subtasks\n")
	for i, st := range subs {
		fmt.Fprintf(&b, "%d. %s %s - %s\n", i+1, glyph(st.Status), st.Title, st.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

// separateRegion renders a link list to the child items.
func separateRegion(links []ChildLink) string {
	var b strings.Builder
	b.WriteString("## Subtasks\n")
	for _, l := range links {
		fmt.Fprintf(&b, "- %s %s (`%s`)\n", glyph(l.Status), l.Title, l.ChildID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SpliceRegion replaces the generated region in body with region, or appends
// a fresh region when none exists. Hand-edited text outside the markers is
// preserved byte for byte.
func SpliceRegion(body, region string) string {
	generated := BeginMarker + "\n" + region + "\n" + EndMarker

	begin := strings.Index(body, BeginMarker)
	end := strings.Index(body, EndMarker)
	if begin >= 0 && end > begin {
		return body[:begin] + generated + body[end+len(EndMarker):]
	}
	if strings.TrimSpace(body) == "" {
		return generated
	}
	return strings.TrimRight(body, "\n") + "\n\n" + generated
}

// Form serializes the subtasks in their display-mode form for fingerprint
// input. The mode prefixes the serialization so flipping modes invalidates
// every parent fingerprint.
func Form(t *types.Task, mode types.SubtaskMode) string {
	if len(t.Subtasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(mode))
	for _, st := range t.Subtasks {
		fmt.Fprintf(&b, "|%s %s %s", glyph(st.Status), st.Title, st.Status)
	}
	return b.String()
}

// Children builds the separate-mode child item specifications for a parent,
// in source order.
func Children(t *types.Task) []ChildSpec {
	specs := make([]ChildSpec, 0, len(t.Subtasks))
	for _, st := range t.Subtasks {
		body := st.Body()
		if body != "" {
			body += "\n\n"
		}
		body += fmt.Sprintf("**Parent task:** %s (`%s`)", t.Title, t.ID)
		specs = append(specs, ChildSpec{
			ChildID: st.ID,
			Title:   fmt.Sprintf("%s [%s]", st.Title, t.Title),
			Body:    body,
			Status:  st.Status,
		})
	}
	return specs
}
