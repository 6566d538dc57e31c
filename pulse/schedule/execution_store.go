package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
)

// DefaultExecutionLimit caps ListExecutions when the caller passes no limit
const DefaultExecutionLimit = 50

// MaxExecutionLimit is the largest page ListExecutions returns
const MaxExecutionLimit = 1000

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, schedule_id, job_type, status, started_at,
	finished_at, duration_ms, result_summary, error_message`

// Create inserts a running execution record.
// The one-running-per-schedule index turns a concurrent start into ErrAlreadyRunning.
func (s *ExecutionStore) Create(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (
			id, schedule_id, job_type, status, started_at, result_summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		exec.ID,
		db.NullString(exec.ScheduleID),
		string(exec.JobType),
		string(exec.Status),
		db.FormatTime(exec.StartedAt),
		exec.ResultSummary,
		db.FormatTime(exec.StartedAt),
	)
	if err != nil {
		if isUniqueViolation(err) && exec.ScheduleID != nil {
			return errors.Wrapf(ErrAlreadyRunning, "schedule %s", *exec.ScheduleID)
		}
		return errors.Wrap(err, "failed to create execution")
	}
	return nil
}

// Finish moves a running record to completed or failed.
// Records are immutable once finished, so a second Finish is a conflict.
func (s *ExecutionStore) Finish(ctx context.Context, exec *Execution) error {
	if !exec.Finished() {
		return errors.AssertionFailedf("finish execution %s with non-terminal status %q", exec.ID, exec.Status)
	}
	if exec.FinishedAt == nil {
		return errors.AssertionFailedf("finish execution %s without finished_at", exec.ID)
	}

	query := `
		UPDATE executions
		SET status = ?, finished_at = ?, duration_ms = ?, result_summary = ?, error_message = ?
		WHERE id = ? AND status = 'running'
	`
	var duration interface{}
	if exec.DurationMs != nil {
		duration = *exec.DurationMs
	}

	result, err := s.db.ExecContext(ctx, query,
		string(exec.Status),
		db.FormatTime(*exec.FinishedAt),
		duration,
		exec.ResultSummary,
		db.NullString(exec.ErrorMessage),
		exec.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to finish execution %s", exec.ID)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, exec.ID); getErr != nil {
			return getErr
		}
		return errors.Wrapf(errors.ErrConflict, "execution %s already finished", exec.ID)
	}
	return nil
}

// Get retrieves an execution by ID
func (s *ExecutionStore) Get(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = ?`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return exec, nil
}

// List returns executions most recent first, optionally for one schedule.
// limit <= 0 uses DefaultExecutionLimit.
func (s *ExecutionStore) List(ctx context.Context, scheduleID *string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	if limit > MaxExecutionLimit {
		limit = MaxExecutionLimit
	}

	var rows *sql.Rows
	var err error
	if scheduleID != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions
			WHERE schedule_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`, *scheduleID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions
			ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}
	return executions, nil
}

// HasRunning reports whether the schedule has a running execution
func (s *ExecutionStore) HasRunning(ctx context.Context, scheduleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM executions WHERE schedule_id = ? AND status = 'running')`,
		scheduleID).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check running executions for schedule %s", scheduleID)
	}
	return exists, nil
}

// FailOrphaned marks records left running by a previous process as failed.
// Without this a crash would hold the overlap guard forever.
func (s *ExecutionStore) FailOrphaned(ctx context.Context, reason string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = 'failed', finished_at = ?, error_message = ?
		WHERE status = 'running'`,
		db.FormatTime(now), reason)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fail orphaned executions")
	}
	return result.RowsAffected()
}

// CleanupOld deletes finished executions that started before cutoff.
// Running records are never deleted.
func (s *ExecutionStore) CleanupOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE status != 'running' AND started_at < ?`,
		db.FormatTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}
	return result.RowsAffected()
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var scheduleID, finishedAt, errorMessage sql.NullString
	var jobType, status, startedAt string
	var durationMs sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&scheduleID,
		&jobType,
		&status,
		&startedAt,
		&finishedAt,
		&durationMs,
		&exec.ResultSummary,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	exec.ScheduleID = db.StringPtr(scheduleID)
	exec.JobType = JobType(jobType)
	exec.Status = ExecutionStatus(status)
	exec.ErrorMessage = db.StringPtr(errorMessage)
	if durationMs.Valid {
		d := durationMs.Int64
		exec.DurationMs = &d
	}
	if exec.StartedAt, err = db.ParseTime(startedAt); err != nil {
		return nil, errors.Wrapf(err, "started_at for execution %s", exec.ID)
	}
	if exec.FinishedAt, err = db.ParseNullTime(finishedAt); err != nil {
		return nil, errors.Wrapf(err, "finished_at for execution %s", exec.ID)
	}
	return &exec, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
