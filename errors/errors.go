// Package errors is the single error package used across tradepulse.
//
// It re-exports github.com/cockroachdb/errors so every error carries a stack
// trace, and adds the generic sentinels that domain packages wrap:
//
//	var ErrExpired = errors.Wrap(errors.ErrConflict, "approval request expired")
//
//	if errors.Is(err, approval.ErrExpired) { ... }  // specific
//	if errors.Is(err, errors.ErrConflict) { ... }   // generic
//
// Context is attached with Wrapf and WithDetailf, never by string concatenation.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// Hints and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// AssertionFailedf marks a programming error, e.g. a dispatch that slipped past the kill-switch.
// IsAssertionFailure detects one.
var (
	AssertionFailedf   = crdb.AssertionFailedf
	IsAssertionFailure = crdb.IsAssertionFailure
)

// Generic sentinels. Domain packages wrap these so callers can branch on
// either the specific or the generic kind.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates input rejected at the boundary; never persisted
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates the record is not in a state that allows the operation
	ErrConflict = New("state conflict")

	// ErrTimeout indicates an operation exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrUnavailable indicates a required backend (database, redis, broker) is down
	ErrUnavailable = New("service unavailable")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequest reports whether err is or wraps ErrInvalidRequest.
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFound creates an error wrapping ErrNotFound with a formatted message.
func NewNotFound(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequest creates an error wrapping ErrInvalidRequest with a formatted message.
func NewInvalidRequest(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}
