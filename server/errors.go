package server

import (
	"net/http"

	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/pulse/schedule"
)

// Error codes returned in the "code" field of JSON error bodies
const (
	CodeNotFound                  = "not_found"
	CodeInvalidScheduleDefinition = "invalid_schedule_definition"
	CodeInvalidRequest            = "invalid_request"
	CodeAlreadyResolved           = "already_resolved"
	CodeAlreadyRunning            = "already_running"
	CodeExpired                   = "expired"
	CodeTradingHalted             = "trading_halted"
	CodeRequestInFlight           = "request_in_flight"
	CodeConflict                  = "conflict"
	CodeUnavailable               = "unavailable"
	CodeInternal                  = "internal"
)

// errorCode maps an error to its wire code and HTTP status.
// Specific domain sentinels are checked before the generic ones they wrap.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, execution.ErrTradingHalted):
		return CodeTradingHalted, http.StatusLocked
	case errors.Is(err, execution.ErrRequestInFlight):
		return CodeRequestInFlight, http.StatusConflict
	case errors.Is(err, approval.ErrExpired):
		return CodeExpired, http.StatusGone
	case errors.Is(err, approval.ErrAlreadyResolved):
		return CodeAlreadyResolved, http.StatusConflict
	case errors.Is(err, schedule.ErrAlreadyRunning):
		return CodeAlreadyRunning, http.StatusConflict
	case errors.Is(err, schedule.ErrInvalidScheduleDefinition):
		return CodeInvalidScheduleDefinition, http.StatusBadRequest
	case errors.IsNotFound(err):
		return CodeNotFound, http.StatusNotFound
	case errors.IsInvalidRequest(err):
		return CodeInvalidRequest, http.StatusBadRequest
	case errors.Is(err, errors.ErrConflict):
		return CodeConflict, http.StatusConflict
	case errors.Is(err, errors.ErrUnavailable):
		return CodeUnavailable, http.StatusServiceUnavailable
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
