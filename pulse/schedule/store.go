package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
)

// Store handles persistence of schedules and the global pause flag
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const scheduleColumns = `id, name, job_type, cron_expression, timezone,
	requires_approval, enabled, created_at, updated_at, last_run_at`

// Create inserts a new schedule
func (s *Store) Create(ctx context.Context, sch *Schedule) error {
	query := `INSERT INTO schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sch.ID,
		sch.Name,
		string(sch.JobType),
		sch.CronExpression,
		sch.Timezone,
		sch.RequiresApproval,
		sch.Enabled,
		db.FormatTime(sch.CreatedAt),
		db.FormatTime(sch.UpdatedAt),
		db.NullTime(sch.LastRunAt),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create schedule %s", sch.ID)
	}
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(ctx context.Context, id string) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	sch, err := scanSchedule(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("schedule %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get schedule %s", id)
	}
	return sch, nil
}

// List returns all schedules, oldest first
func (s *Store) List(ctx context.Context) ([]*Schedule, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at, id`)
}

// ListEnabled returns schedules the fire loop should evaluate
func (s *Store) ListEnabled(ctx context.Context) ([]*Schedule, error) {
	return s.list(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 ORDER BY created_at, id`)
}

func (s *Store) list(ctx context.Context, query string) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schedules")
	}
	return schedules, nil
}

// Update writes the mutable fields of sch
func (s *Store) Update(ctx context.Context, sch *Schedule) error {
	query := `
		UPDATE schedules
		SET name = ?, job_type = ?, cron_expression = ?, timezone = ?,
		    requires_approval = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		sch.Name,
		string(sch.JobType),
		sch.CronExpression,
		sch.Timezone,
		sch.RequiresApproval,
		sch.Enabled,
		db.FormatTime(sch.UpdatedAt),
		sch.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update schedule %s", sch.ID)
	}
	return requireRow(result, "schedule %s", sch.ID)
}

// SetEnabled toggles a schedule without touching its definition
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set enabled=%t on schedule %s", enabled, id)
	}
	return requireRow(result, "schedule %s", id)
}

// UpdateLastRun records the instant a schedule fired.
// last_run_at only moves forward.
func (s *Store) UpdateLastRun(ctx context.Context, id string, at time.Time) error {
	stamp := db.FormatTime(at)
	_, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET last_run_at = ?
		WHERE id = ? AND (last_run_at IS NULL OR last_run_at < ?)`,
		stamp, id, stamp)
	if err != nil {
		return errors.Wrapf(err, "failed to update last_run_at for schedule %s", id)
	}
	return nil
}

// RequiresApproval reports whether candidates from this schedule need sign-off
func (s *Store) RequiresApproval(ctx context.Context, id string) (bool, error) {
	var requires bool
	err := s.db.QueryRowContext(ctx, `SELECT requires_approval FROM schedules WHERE id = ?`, id).Scan(&requires)
	if err == sql.ErrNoRows {
		return false, errors.NewNotFound("schedule %s", id)
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read requires_approval for schedule %s", id)
	}
	return requires, nil
}

// SetGlobalPause sets the override checked before any schedule's enabled flag
func (s *Store) SetGlobalPause(ctx context.Context, paused bool, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_state SET paused = ?, updated_at = ? WHERE id = 1`,
		paused, db.FormatTime(now))
	if err != nil {
		return errors.Wrapf(err, "failed to set global pause=%t", paused)
	}
	return nil
}

// GlobalPaused reports the global override
func (s *Store) GlobalPaused(ctx context.Context) (bool, error) {
	var paused bool
	if err := s.db.QueryRowContext(ctx, `SELECT paused FROM scheduler_state WHERE id = 1`).Scan(&paused); err != nil {
		return false, errors.Wrap(err, "failed to read global pause state")
	}
	return paused, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sch Schedule
	var jobType, createdAt, updatedAt string
	var lastRunAt sql.NullString

	err := row.Scan(
		&sch.ID,
		&sch.Name,
		&jobType,
		&sch.CronExpression,
		&sch.Timezone,
		&sch.RequiresApproval,
		&sch.Enabled,
		&createdAt,
		&updatedAt,
		&lastRunAt,
	)
	if err != nil {
		return nil, err
	}

	sch.JobType = JobType(jobType)
	if sch.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "created_at for schedule %s", sch.ID)
	}
	if sch.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "updated_at for schedule %s", sch.ID)
	}
	if sch.LastRunAt, err = db.ParseNullTime(lastRunAt); err != nil {
		return nil, errors.Wrapf(err, "last_run_at for schedule %s", sch.ID)
	}
	sch.deriveStatus()
	return &sch, nil
}

func requireRow(result sql.Result, format string, args ...interface{}) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		return errors.NewNotFound(format, args...)
	}
	return nil
}
