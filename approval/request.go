// Package approval holds candidate actions for human sign-off before they
// reach the execution gateway. Each request resolves exactly once: approved,
// rejected, or expired, decided by a compare-and-set on its status.
package approval

import (
	"time"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// DefaultWindow is how long a request stays pending
const DefaultWindow = 4 * time.Hour

// Status is the lifecycle of a request
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ErrAlreadyResolved is returned when a request left pending before this call
var ErrAlreadyResolved = errors.Wrap(errors.ErrConflict, "approval request already resolved")

// ErrExpired is returned when a request's window closed before it was approved or rejected
var ErrExpired = errors.New("approval request expired")

// SweeperActor is recorded as resolvedBy on requests the sweep expires
const SweeperActor = "system:sweeper"

// Request is one candidate action awaiting sign-off.
// ExpiresAt is fixed at creation. Requests are never deleted.
type Request struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	ScheduleID  *string        `json:"schedule_id,omitempty"`
	Candidate   trade.Action   `json:"candidate_action"`
	RiskTier    trade.RiskTier `json:"risk_tier"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy  *string        `json:"resolved_by,omitempty"`
}

// Pending reports whether r can still be approved at now. The window is
// inclusive of ExpiresAt.
func (r *Request) Pending(now time.Time) bool {
	return r.Status == StatusPending && !now.After(r.ExpiresAt)
}
