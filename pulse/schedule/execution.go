package schedule

import "time"

// ExecutionStatus is the lifecycle of a job run
type ExecutionStatus string

// A record moves running → completed|failed exactly once and is immutable after
const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is one run of a job, scheduled or manual.
//
// At most one running Execution exists per ScheduleID. Manual triggers
// without a schedule have a nil ScheduleID and are not constrained.
type Execution struct {
	ID            string          `json:"id"` // PX… vanity id
	ScheduleID    *string         `json:"schedule_id,omitempty"`
	JobType       JobType         `json:"job_type"`
	Status        ExecutionStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	ResultSummary string          `json:"result_summary"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// Finished reports whether the record reached a terminal status
func (e *Execution) Finished() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}
