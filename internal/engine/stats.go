package engine

import (
	"encoding/json"
	"sync"
	"time"
)

// SyncError names one failed operation. The run continues past these; CI
// consumers inspect the collection.
type SyncError struct {
	TaskID  string `json:"task_id,omitempty"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// Statistics accumulates the outcome of one sync run.
type Statistics struct {
	mu      sync.Mutex
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Deleted int         `json:"deleted"`
	Skipped int         `json:"skipped"`
	Errors  []SyncError `json:"errors"`
}

func (s *Statistics) addCreated() { s.mu.Lock(); s.Created++; s.mu.Unlock() }
func (s *Statistics) addUpdated() { s.mu.Lock(); s.Updated++; s.mu.Unlock() }
func (s *Statistics) addDeleted() { s.mu.Lock(); s.Deleted++; s.mu.Unlock() }
func (s *Statistics) addSkipped() { s.mu.Lock(); s.Skipped++; s.mu.Unlock() }

func (s *Statistics) addError(taskID, phase string, err error) {
	s.mu.Lock()
	s.Errors = append(s.Errors, SyncError{TaskID: taskID, Phase: phase, Message: err.Error()})
	s.mu.Unlock()
}

// HasErrors reports whether any operation failed.
func (s *Statistics) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors) > 0
}

// Report is the machine-readable record emitted with --json.
type Report struct {
	Stats         *Statistics `json:"stats"`
	ProjectNumber int         `json:"project_number"`
	ProjectID     string      `json:"project_id"`
	Tag           string      `json:"tag"`
	DurationMS    int64       `json:"duration_ms"`
}

// NewReport assembles the JSON record for one run.
func NewReport(stats *Statistics, projectNumber int, projectID, tag string, dur time.Duration) *Report {
	if stats.Errors == nil {
		stats.Errors = []SyncError{}
	}
	return &Report{
		Stats:         stats,
		ProjectNumber: projectNumber,
		ProjectID:     projectID,
		Tag:           tag,
		DurationMS:    dur.Milliseconds(),
	}
}

// JSON renders the report as a single JSON object.
func (r *Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}
