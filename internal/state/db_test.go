package state

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrate_CreatesTables(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"schema_version", "tasks", "dependencies", "sessions"}
	for _, table := range tables {
		row := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		var name string
		if err := row.Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate call: %v", err)
	}

	row := db.QueryRow("SELECT COUNT(*) FROM schema_version")
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 3 {
		t.Errorf("schema_version rows = %d, want 3", count)
	}
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	sentinel := errors.New("boom")

	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, "tx-fail", "2026-01-01T00:00:00Z"); err != nil {
			t.Fatalf("Exec: %v", err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Transaction error = %v, want %v", err, sentinel)
	}

	row := db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", "tx-fail")
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled-back insert is visible, count = %d", count)
	}
}
