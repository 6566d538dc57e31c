package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

// Store persists approval requests. Every status change is a compare-and-set
// on status = 'pending', so concurrent approve, reject and sweep calls have
// exactly one winner.
type Store struct {
	db *sql.DB
}

// NewStore creates a new approval store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, execution_id, schedule_id, candidate_action, risk_tier,
	status, created_at, expires_at, resolved_at, resolved_by`

// CreateBatch inserts pending requests atomically: all or none
func (s *Store) CreateBatch(ctx context.Context, reqs []*Request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin approval batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO approval_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare approval insert")
	}
	defer stmt.Close()

	for _, r := range reqs {
		candidate, err := json.Marshal(r.Candidate)
		if err != nil {
			return errors.Wrapf(err, "failed to encode candidate for request %s", r.ID)
		}
		_, err = stmt.ExecContext(ctx,
			r.ID,
			r.ExecutionID,
			db.NullString(r.ScheduleID),
			string(candidate),
			string(r.RiskTier),
			string(r.Status),
			db.FormatTime(r.CreatedAt),
			db.FormatTime(r.ExpiresAt),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to create approval request %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit approval batch")
	}
	return nil
}

// Get retrieves a request by ID
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("approval request %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get approval request %s", id)
	}
	return r, nil
}

// ListPending returns requests still approvable at now, soonest-expiring first.
// A nil tier returns every tier.
func (s *Store) ListPending(ctx context.Context, tier *trade.RiskTier, now time.Time) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests
		WHERE status = 'pending' AND expires_at >= ?`
	args := []interface{}{db.FormatTime(now)}
	if tier != nil {
		query += ` AND risk_tier = ?`
		args = append(args, string(*tier))
	}
	query += ` ORDER BY expires_at ASC, id ASC`

	return s.list(ctx, query, args...)
}

// ListByExecution returns every request created for one job run, oldest first
func (s *Store) ListByExecution(ctx context.Context, executionID string) ([]*Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+` FROM approval_requests
		WHERE execution_id = ? ORDER BY created_at ASC, id ASC`, executionID)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list approval requests")
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan approval request")
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating approval requests")
	}
	return reqs, nil
}

// CountPending counts requests still approvable at now
func (s *Store) CountPending(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approval_requests WHERE status = 'pending' AND expires_at >= ?`,
		db.FormatTime(now)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pending approvals")
	}
	return n, nil
}

// Resolve moves a pending, unexpired request to approved or rejected.
// A request is still resolvable at exactly expires_at; it expires once now is past it.
// It reports false when the CAS lost: the request is missing, resolved, or expired.
func (s *Store) Resolve(ctx context.Context, id string, to Status, actor string, now time.Time) (bool, error) {
	if to != StatusApproved && to != StatusRejected {
		return false, errors.AssertionFailedf("resolve approval request %s to %q", id, to)
	}
	stamp := db.FormatTime(now)
	result, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'pending' AND expires_at >= ?`,
		string(to), stamp, actor, id, stamp)
	if err != nil {
		return false, errors.Wrapf(err, "failed to resolve approval request %s", id)
	}
	return affectedOne(result)
}

// Expire moves one pending request whose window has closed to expired
func (s *Store) Expire(ctx context.Context, id string, now time.Time) (bool, error) {
	stamp := db.FormatTime(now)
	result, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = 'expired', resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'pending' AND expires_at < ?`,
		stamp, SweeperActor, id, stamp)
	if err != nil {
		return false, errors.Wrapf(err, "failed to expire approval request %s", id)
	}
	return affectedOne(result)
}

// ExpireDue expires every pending request whose window has closed and
// returns their ids. Running it twice changes nothing the second time.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	stamp := db.FormatTime(now)
	rows, err := s.db.QueryContext(ctx, `
		UPDATE approval_requests
		SET status = 'expired', resolved_at = ?, resolved_by = ?
		WHERE status = 'pending' AND expires_at < ?
		RETURNING id`,
		stamp, SweeperActor, stamp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expire approval requests")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan expired id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating expired ids")
	}
	return ids, nil
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to check rows affected")
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var scheduleID, resolvedAt, resolvedBy sql.NullString
	var candidate, tier, status, createdAt, expiresAt string

	err := row.Scan(
		&r.ID,
		&r.ExecutionID,
		&scheduleID,
		&candidate,
		&tier,
		&status,
		&createdAt,
		&expiresAt,
		&resolvedAt,
		&resolvedBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(candidate), &r.Candidate); err != nil {
		return nil, errors.Wrapf(err, "candidate_action for request %s", r.ID)
	}
	r.ScheduleID = db.StringPtr(scheduleID)
	r.RiskTier = trade.RiskTier(tier)
	r.Status = Status(status)
	r.ResolvedBy = db.StringPtr(resolvedBy)
	if r.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "created_at for request %s", r.ID)
	}
	if r.ExpiresAt, err = db.ParseTime(expiresAt); err != nil {
		return nil, errors.Wrapf(err, "expires_at for request %s", r.ID)
	}
	if r.ResolvedAt, err = db.ParseNullTime(resolvedAt); err != nil {
		return nil, errors.Wrapf(err, "resolved_at for request %s", r.ID)
	}
	return &r, nil
}
