package execution

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
)

// DefaultIdempotencyTTL is how long a request id maps to its outcome
const DefaultIdempotencyTTL = 600 * time.Second

// EntryState is the lifecycle of an idempotency entry
type EntryState string

const (
	EntryPending   EntryState = "pending"   // reserved, dispatch in progress
	EntryCompleted EntryState = "completed" // outcome snapshot stored
)

// Entry maps a request id to its outcome until ExpiresAt
type Entry struct {
	RequestID   string     `json:"request_id"`
	State       EntryState `json:"state"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Snapshot    []byte     `json:"snapshot,omitempty"`
}

// IdempotencyCache stores outcome snapshots by request id.
//
// Reserve is the atomic check-then-write: exactly one caller wins a request id
// until its entry expires. An entry is immutable once completed.
type IdempotencyCache interface {
	// Get returns the live entry for requestID, or nil
	Get(ctx context.Context, requestID string, now time.Time) (*Entry, error)
	// Reserve claims requestID. When another live entry holds it, that entry is returned with reserved=false.
	Reserve(ctx context.Context, requestID string, now time.Time, ttl time.Duration) (entry *Entry, reserved bool, err error)
	// Complete stores the snapshot on a reserved entry, keeping its original expiry
	Complete(ctx context.Context, entry *Entry, snapshot []byte) error
	// PurgeExpired removes dead entries and reports how many
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteIdempotencyCache keeps entries in the idempotency_entries table
type SQLiteIdempotencyCache struct {
	db *sql.DB
}

// NewSQLiteIdempotencyCache creates a cache on db
func NewSQLiteIdempotencyCache(db *sql.DB) *SQLiteIdempotencyCache {
	return &SQLiteIdempotencyCache{db: db}
}

// Get returns the live entry for requestID, or nil
func (c *SQLiteIdempotencyCache) Get(ctx context.Context, requestID string, now time.Time) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT request_id, state, first_seen_at, expires_at, outcome_snapshot
		FROM idempotency_entries
		WHERE request_id = ? AND expires_at > ?`,
		requestID, db.FormatTime(now))

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read idempotency entry %s", requestID)
	}
	return entry, nil
}

// Reserve inserts a pending entry, replacing an expired one in the same statement
func (c *SQLiteIdempotencyCache) Reserve(ctx context.Context, requestID string, now time.Time, ttl time.Duration) (*Entry, bool, error) {
	entry := &Entry{
		RequestID:   requestID,
		State:       EntryPending,
		FirstSeenAt: now.UTC(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO idempotency_entries (request_id, state, first_seen_at, expires_at, outcome_snapshot)
		VALUES (?, 'pending', ?, ?, NULL)
		ON CONFLICT(request_id) DO UPDATE SET
			state = 'pending',
			first_seen_at = excluded.first_seen_at,
			expires_at = excluded.expires_at,
			outcome_snapshot = NULL
		WHERE idempotency_entries.expires_at <= excluded.first_seen_at`,
		requestID, db.FormatTime(entry.FirstSeenAt), db.FormatTime(entry.ExpiresAt))
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to reserve request %s", requestID)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to check rows affected")
	}
	if n == 1 {
		return entry, true, nil
	}

	existing, err := c.Get(ctx, requestID, now)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.AssertionFailedf("request %s neither reserved nor live", requestID)
	}
	return existing, false, nil
}

// Complete stores the snapshot. Completing twice is an error.
func (c *SQLiteIdempotencyCache) Complete(ctx context.Context, entry *Entry, snapshot []byte) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE idempotency_entries
		SET state = 'completed', outcome_snapshot = ?
		WHERE request_id = ? AND state = 'pending' AND first_seen_at = ?`,
		snapshot, entry.RequestID, db.FormatTime(entry.FirstSeenAt))
	if err != nil {
		return errors.Wrapf(err, "failed to complete request %s", entry.RequestID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrConflict, "request %s is not pending", entry.RequestID)
	}
	entry.State = EntryCompleted
	entry.Snapshot = snapshot
	return nil
}

// PurgeExpired deletes entries past their TTL
func (c *SQLiteIdempotencyCache) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM idempotency_entries WHERE expires_at <= ?`, db.FormatTime(now))
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge idempotency entries")
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var state, firstSeen, expires string
	var snapshot []byte

	if err := row.Scan(&entry.RequestID, &state, &firstSeen, &expires, &snapshot); err != nil {
		return nil, err
	}

	entry.State = EntryState(state)
	entry.Snapshot = snapshot
	var err error
	if entry.FirstSeenAt, err = db.ParseTime(firstSeen); err != nil {
		return nil, errors.Wrapf(err, "first_seen_at for request %s", entry.RequestID)
	}
	if entry.ExpiresAt, err = db.ParseTime(expires); err != nil {
		return nil, errors.Wrapf(err, "expires_at for request %s", entry.RequestID)
	}
	return &entry, nil
}
