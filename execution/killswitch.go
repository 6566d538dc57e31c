package execution

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
)

// KillSwitchState is the single versioned halt record.
// Version increases by one on every set, including a set to the current value.
type KillSwitchState struct {
	Enabled bool      `json:"enabled"`
	SetAt   time.Time `json:"set_at"`
	SetBy   string    `json:"set_by"`
	Version int64     `json:"version"`
}

// KillSwitch reads and writes the halt record. Set is unconditional.
type KillSwitch interface {
	State(ctx context.Context) (KillSwitchState, error)
	Set(ctx context.Context, enabled bool, actor string, now time.Time) (KillSwitchState, error)
}

// SQLiteKillSwitch keeps the record in the kill_switch singleton row
type SQLiteKillSwitch struct {
	db *sql.DB
}

// NewSQLiteKillSwitch creates a kill-switch on db
func NewSQLiteKillSwitch(db *sql.DB) *SQLiteKillSwitch {
	return &SQLiteKillSwitch{db: db}
}

// State reads the current record
func (k *SQLiteKillSwitch) State(ctx context.Context) (KillSwitchState, error) {
	return k.read(k.db.QueryRowContext(ctx,
		`SELECT enabled, set_at, set_by, version FROM kill_switch WHERE id = 1`))
}

// Set writes the record and bumps its version in one transaction
func (k *SQLiteKillSwitch) Set(ctx context.Context, enabled bool, actor string, now time.Time) (KillSwitchState, error) {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to begin kill-switch update")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE kill_switch
		SET enabled = ?, set_at = ?, set_by = ?, version = version + 1
		WHERE id = 1`,
		enabled, db.FormatTime(now), actor)
	if err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to set kill-switch")
	}

	state, err := k.read(tx.QueryRowContext(ctx,
		`SELECT enabled, set_at, set_by, version FROM kill_switch WHERE id = 1`))
	if err != nil {
		return KillSwitchState{}, err
	}
	if err := tx.Commit(); err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to commit kill-switch update")
	}
	return state, nil
}

func (k *SQLiteKillSwitch) read(row *sql.Row) (KillSwitchState, error) {
	var state KillSwitchState
	var setAt string
	if err := row.Scan(&state.Enabled, &setAt, &state.SetBy, &state.Version); err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to read kill-switch")
	}
	t, err := db.ParseTime(setAt)
	if err != nil {
		return KillSwitchState{}, errors.Wrap(err, "kill-switch set_at")
	}
	state.SetAt = t
	return state, nil
}
