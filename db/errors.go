package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/tradepulse/errors"
)

// IsDatabaseClosed reports whether err came from a closed pool or connection.
// Background loops (scheduler finish writes, the approval sweeper, the
// idempotency janitor) can outlive Close during shutdown and see this.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	// database/sql does not export the error returned by a closed *sql.DB
	return strings.Contains(err.Error(), "sql: database is closed")
}
