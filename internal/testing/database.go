package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/tradepulse/db"
)

// CreateTestDB creates an in-memory SQLite database with all migrations applied.
// The pool is pinned to one connection because each sqlite :memory:
// connection is its own database. Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if err := db.Migrate(testDB, nil); err != nil {
		testDB.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}
