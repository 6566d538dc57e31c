// Package schedule runs recurring trading workflows: cron evaluation per
// timezone, durable schedules and execution records, and the coordinating
// loop that fires each due instant at most once.
package schedule

import (
	"strings"
	"time"

	"github.com/teranos/tradepulse/errors"
)

// JobType selects the JobRunner a schedule invokes
type JobType string

const (
	JobMorningRoutine    JobType = "morning-routine"    // pre-market scan
	JobNewsReview        JobType = "news-review"        // news digest
	JobAIRecommendations JobType = "ai-recommendations" // AI-generated trade candidates
	JobCustom            JobType = "custom"
)

// JobTypes lists every known job type
var JobTypes = []JobType{JobMorningRoutine, JobNewsReview, JobAIRecommendations, JobCustom}

// Valid reports whether j is a known job type
func (j JobType) Valid() bool {
	for _, known := range JobTypes {
		if j == known {
			return true
		}
	}
	return false
}

// Status is derived from Enabled
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Schedule is a recurring job definition.
// Schedules are soft-disabled, never deleted, so execution records keep their owner.
type Schedule struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	JobType          JobType    `json:"job_type"`
	CronExpression   string     `json:"cron_expression"`
	Timezone         string     `json:"timezone"`
	RequiresApproval bool       `json:"requires_approval"`
	Enabled          bool       `json:"enabled"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"` // last instant fired; never after now
	NextRunAt        *time.Time `json:"next_run_at,omitempty"` // computed on read, not stored
}

// deriveStatus sets Status from Enabled
func (s *Schedule) deriveStatus() {
	if s.Enabled {
		s.Status = StatusActive
	} else {
		s.Status = StatusPaused
	}
}

// anchor is the instant after which the next fire time is computed
func (s *Schedule) anchor() time.Time {
	if s.LastRunAt != nil {
		return *s.LastRunAt
	}
	return s.CreatedAt
}

// Definition is the input to CreateSchedule.
// RequiresApproval and Enabled default to true when omitted.
type Definition struct {
	Name             string  `json:"name"`
	JobType          JobType `json:"job_type"`
	CronExpression   string  `json:"cron_expression"`
	Timezone         string  `json:"timezone"`
	RequiresApproval *bool   `json:"requires_approval,omitempty"`
	Enabled          *bool   `json:"enabled,omitempty"`
}

// Patch is a partial update; nil fields are left unchanged
type Patch struct {
	Name             *string  `json:"name,omitempty"`
	JobType          *JobType `json:"job_type,omitempty"`
	CronExpression   *string  `json:"cron_expression,omitempty"`
	Timezone         *string  `json:"timezone,omitempty"`
	RequiresApproval *bool    `json:"requires_approval,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Name == nil && p.JobType == nil && p.CronExpression == nil &&
		p.Timezone == nil && p.RequiresApproval == nil && p.Enabled == nil
}

// ErrInvalidScheduleDefinition wraps every cron, timezone or field validation failure
var ErrInvalidScheduleDefinition = errors.Wrap(errors.ErrInvalidRequest, "invalid schedule definition")

// ErrAlreadyRunning is returned when a schedule already has a running execution
var ErrAlreadyRunning = errors.Wrap(errors.ErrConflict, "schedule already has a running execution")

func validateFields(name string, jobType JobType) error {
	if strings.TrimSpace(name) == "" {
		return errors.Wrap(ErrInvalidScheduleDefinition, "name is required")
	}
	if !jobType.Valid() {
		return errors.Wrapf(ErrInvalidScheduleDefinition, "unknown job type %q", jobType)
	}
	return nil
}
