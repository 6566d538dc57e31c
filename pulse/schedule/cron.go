package schedule

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/tradepulse/errors"
)

// Standard 5-field cron (minute hour dom month dow) plus @daily-style descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Spec is a parsed cron expression bound to a timezone
type Spec struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

// ParseSpec validates expr and tz. It fails with ErrInvalidScheduleDefinition
// when either cannot be parsed or when the expression never fires after now.
func ParseSpec(expr, tz string, now time.Time) (*Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.Wrap(ErrInvalidScheduleDefinition, "cron expression is required")
	}
	// The zone belongs in the timezone field so it is visible and validated once
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		return nil, errors.Wrapf(ErrInvalidScheduleDefinition, "cron expression %q: set the timezone field instead of a TZ= prefix", expr)
	}

	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidScheduleDefinition, "cron expression %q: %v", expr, err)
	}

	spec := &Spec{expr: expr, schedule: sched, location: loc}
	if spec.Next(now).IsZero() {
		return nil, errors.Wrapf(ErrInvalidScheduleDefinition, "cron expression %q has no future fire time", expr)
	}
	return spec, nil
}

// LoadLocation resolves an IANA zone name; empty means UTC
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidScheduleDefinition, "unknown timezone %q", tz)
	}
	return loc, nil
}

// Next returns the first fire time strictly after t, or the zero time if none exists.
// Fields are evaluated on the wall clock of the spec's timezone.
func (s *Spec) Next(t time.Time) time.Time {
	next := s.schedule.Next(t.In(s.location))
	if next.IsZero() {
		return next
	}
	return next.UTC()
}

// DueInstant returns the most recent fire time in (since, now].
// Earlier missed instants are never returned: one due fire at most,
// however long the process was down.
func (s *Spec) DueInstant(since, now time.Time) (time.Time, bool) {
	if !now.After(since) {
		return time.Time{}, false
	}

	// Widen a lookback window until it contains a fire time, so a long
	// outage costs O(log gap) evaluations rather than one per missed instant.
	window := time.Minute
	for {
		start := now.Add(-window)
		clamped := !start.After(since) || window > maxLookback
		if clamped {
			start = since
		}

		first := s.Next(start)
		if !first.IsZero() && !first.After(now) {
			latest := first
			for {
				n := s.Next(latest)
				if n.IsZero() || n.After(now) {
					return latest, true
				}
				latest = n
			}
		}

		if clamped {
			return time.Time{}, false
		}
		window *= 2
	}
}

// cron.Schedule.Next gives up after five years; so does the lookback
const maxLookback = 5 * 365 * 24 * time.Hour

// String returns the expression as written
func (s *Spec) String() string {
	return s.expr
}

// Location returns the timezone the spec is evaluated in
func (s *Spec) Location() *time.Location {
	return s.location
}

// specFor parses a stored schedule's spec
func specFor(s *Schedule, now time.Time) (*Spec, error) {
	return ParseSpec(s.CronExpression, s.Timezone, now)
}

// NextRun reports when the schedule fires next: the pending due instant if
// one is waiting for the next tick, otherwise the first fire time after now.
func NextRun(s *Schedule, now time.Time) (*time.Time, error) {
	spec, err := specFor(s, now)
	if err != nil {
		return nil, err
	}
	if due, ok := spec.DueInstant(s.anchor(), now); ok {
		return &due, nil
	}
	next := spec.Next(now)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}
