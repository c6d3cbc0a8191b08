package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal state of an orchestrated run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// PersistStats counts the row-level work one persist call performed.
type PersistStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Total returns the number of rows the persister examined.
func (s PersistStats) Total() int {
	return s.Inserted + s.Updated + s.Skipped
}

// TypeOutcome is the per-record-type result inside a run report.
type TypeOutcome struct {
	RecordType      string       `json:"recordType"`
	Rows            int          `json:"rows"`
	Tier            ExportTier   `json:"tier"`
	TransportFailed bool         `json:"transportFailed,omitempty"`
	Stats           PersistStats `json:"stats"`
	Error           string       `json:"error,omitempty"`
}

// Failed reports whether this type's sync ended in an error.
func (o TypeOutcome) Failed() bool {
	return o.Error != ""
}

// RunReport aggregates the outcomes of one orchestrated pass.
type RunReport struct {
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Outcomes   []TypeOutcome `json:"outcomes"`
}

// Status derives the run status from the per-type outcomes.
func (r RunReport) Status() RunStatus {
	failed := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed++
		}
	}
	switch {
	case len(r.Outcomes) == 0 || failed == 0:
		return RunStatusSuccess
	case failed == len(r.Outcomes):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// FailedTypes lists the record types whose sync errored.
func (r RunReport) FailedTypes() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Failed() {
			names = append(names, o.RecordType)
		}
	}
	return names
}

// SyncRun is the persisted history entry for one run.
type SyncRun struct {
	ID    uuid.UUID  `json:"id"`
	JobID *uuid.UUID `json:"jobId,omitempty"`

	// Database is the destination the run wrote to; empty means the
	// configured default.
	Database   string        `json:"database,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Status     RunStatus     `json:"status"`
	Outcomes   []TypeOutcome `json:"outcomes"`
	Error      string        `json:"error,omitempty"`
}
