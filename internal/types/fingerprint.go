package types

import (
	"crypto/md5" // #nosec G501 - change detector, not a security primitive
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"
)

// Fingerprint computes a stable hex digest over the task's synced content.
// Two tasks with the same fingerprint need no remote update. The subtaskForm
// argument is the rendered display form of the task's subtasks, supplied by
// the renderer so that a mode change (nested vs separate) is itself a change.
//
// Components, in fixed order: title, body, status, priority, assignee,
// test strategy, sorted dependencies, subtask form. Whitespace is collapsed
// per component, so reformatting the source file does not dirty the task.
func Fingerprint(t *Task, subtaskForm string) string {
	h := md5.New() // #nosec G401
	w := fpWriter{h}

	w.str(t.Title)
	w.str(t.Body())
	w.str(string(t.Status))
	w.str(string(t.Priority))
	w.str(t.Assignee)
	w.str(t.TestStrategy)

	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	sort.Strings(deps)
	w.str(strings.Join(deps, ","))

	w.str(subtaskForm)

	return hex.EncodeToString(h.Sum(nil))
}

// fpWriter feeds whitespace-collapsed fields into the hash, each followed by
// a 0x1f separator byte so that adjacent fields do not run together.
type fpWriter struct {
	h hash.Hash
}

func (w fpWriter) str(s string) {
	s = collapseWhitespace(s)
	io.WriteString(w.h, s)
	w.h.Write([]byte{0x1f})
}

// collapseWhitespace squeezes runs of whitespace to a single space and trims
// the ends, making the fingerprint insensitive to source formatting.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
