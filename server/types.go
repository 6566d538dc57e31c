package server

import (
	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/pulse/schedule"
	"github.com/teranos/tradepulse/version"
)

// ListSchedulesResponse is returned by GET /api/schedules
type ListSchedulesResponse struct {
	Schedules []*schedule.Schedule `json:"schedules"`
	Count     int                  `json:"count"`
}

// ListExecutionsResponse is returned by the execution listings
type ListExecutionsResponse struct {
	Executions []*schedule.Execution `json:"executions"`
	Count      int                   `json:"count"`
}

// RunJobRequest is the body of POST /api/jobs/run.
// With a schedule id, job_type may be omitted and defaults to the schedule's.
type RunJobRequest struct {
	JobType    schedule.JobType `json:"job_type"`
	ScheduleID *string          `json:"schedule_id,omitempty"`
}

// PulseStatusResponse is returned by GET /api/pulse/status
type PulseStatusResponse struct {
	GlobalPaused bool                   `json:"global_paused"`
	Loop         map[string]interface{} `json:"loop"`
}

// ListApprovalsResponse is returned by GET /api/approvals
type ListApprovalsResponse struct {
	Requests []*approval.Request `json:"requests"`
	Count    int                 `json:"count"`
}

// ResolveRequest is the body of approve and reject
type ResolveRequest struct {
	Actor string `json:"actor"`
}

// SweepResponse is returned by POST /api/approvals/sweep
type SweepResponse struct {
	Expired int `json:"expired"`
}

// SetKillSwitchRequest is the body of PUT /api/killswitch
type SetKillSwitchRequest struct {
	Enabled *bool  `json:"enabled"`
	Actor   string `json:"actor"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string       `json:"status"`
	State   string       `json:"state"`
	Clients int          `json:"clients"`
	Version version.Info `json:"version"`
}
