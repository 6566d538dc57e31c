// Package execution is the single path from candidate actions to the broker.
// Every call is keyed by a caller-supplied request id, answered from the
// idempotency cache when seen before, and refused while the kill-switch is on.
package execution

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// ErrTradingHalted is returned for live calls while the kill-switch is enabled.
// Nothing is cached, so the same request id may be retried once trading resumes.
var ErrTradingHalted = errors.WithHint(
	errors.New("trading halted: kill-switch is enabled"),
	"dry runs are still allowed; disable the kill-switch to dispatch live orders")

// ErrRequestInFlight is returned when another call holds the request id and has not finished
var ErrRequestInFlight = errors.Wrap(errors.ErrConflict, "request already in flight")

// MaxRequestIDLength bounds caller-supplied request ids
const MaxRequestIDLength = 128

// Request is one execute call
type Request struct {
	RequestID string         `json:"request_id"`
	DryRun    bool           `json:"dry_run"`
	Actions   []trade.Action `json:"actions"`
	Actor     string         `json:"actor,omitempty"`
}

// Validate rejects malformed requests before any lookup; nothing is cached for them
func (r Request) Validate() error {
	id := strings.TrimSpace(r.RequestID)
	if id == "" {
		return errors.NewInvalidRequest("request_id is required")
	}
	if id != r.RequestID {
		return errors.NewInvalidRequest("request_id must not have surrounding whitespace")
	}
	if len(id) > MaxRequestIDLength {
		return errors.NewInvalidRequest("request_id longer than %d characters", MaxRequestIDLength)
	}
	return trade.ValidateAll(r.Actions)
}

// OutcomeStatus summarizes a call across its actions
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success" // every action filled or simulated, or no actions
	StatusPartial OutcomeStatus = "partial" // some actions failed
	StatusFailed  OutcomeStatus = "failed"  // every action failed
)

// ActionStatus is the result of one action
type ActionStatus string

const (
	ActionFilled    ActionStatus = "filled"
	ActionSimulated ActionStatus = "simulated"
	ActionFailed    ActionStatus = "failed"
)

// ActionResult is the per-action breakdown of an Outcome
type ActionResult struct {
	Index          int              `json:"index"`
	Action         trade.Action     `json:"action"`
	Status         ActionStatus     `json:"status"`
	OrderID        string           `json:"order_id,omitempty"`
	FilledQuantity *decimal.Decimal `json:"filled_quantity,omitempty"`
	FillPrice      *decimal.Decimal `json:"fill_price,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// Succeeded reports whether the action filled or was simulated
func (r ActionResult) Succeeded() bool {
	return r.Status == ActionFilled || r.Status == ActionSimulated
}

// Outcome is the cached answer to a request id.
// Duplicate is false on the call that dispatched and true on every replay.
type Outcome struct {
	RequestID  string         `json:"request_id"`
	Status     OutcomeStatus  `json:"status"`
	DryRun     bool           `json:"dry_run"`
	Results    []ActionResult `json:"results"`
	ExecutedAt time.Time      `json:"executed_at"`
	Duplicate  bool           `json:"duplicate"`
}

// Counts returns the number of succeeded and failed actions
func (o *Outcome) Counts() (ok, failed int) {
	for _, r := range o.Results {
		if r.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// summarize derives the overall status from per-action results
func summarize(results []ActionResult) OutcomeStatus {
	var ok, failed int
	for _, r := range results {
		if r.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case ok == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
