package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a module run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// ScanResult is the outcome of running one module against one target.
type ScanResult struct {
	Module    string        `json:"module_name"`
	Status    Status        `json:"status"`
	Entities  []Entity      `json:"entities"`
	Relations []Relation    `json:"connections"`
	Error     string        `json:"error_message,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Elapsed   time.Duration `json:"execution_time"`
}

// Succeeded reports whether the module completed without error or cancellation.
func (r ScanResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// MarshalJSON renders Elapsed in seconds.
func (r ScanResult) MarshalJSON() ([]byte, error) {
	type alias ScanResult
	return json.Marshal(struct {
		alias
		Elapsed float64 `json:"execution_time"`
	}{
		alias:   alias(r),
		Elapsed: r.Elapsed.Seconds(),
	})
}

// Summary aggregates the outcome counts of a set of results.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Entities  int `json:"entities"`
	Relations int `json:"connections"`
}

// Summarize counts statuses and discoveries over results.
// Entities and relations are only counted for completed results.
func Summarize(results []ScanResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
			s.Entities += len(r.Entities)
			s.Relations += len(r.Relations)
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}
