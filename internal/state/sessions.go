package state

import (
	"database/sql"
	"fmt"

	"github.com/loomharness/loom/pkg/models"
)

// CreateSessionRow persists a new session row.
func (db *DB) CreateSessionRow(s *models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, current_task_id, started_at, notes) VALUES (?, ?, ?, ?)
	`, s.ID, nullableString(s.CurrentTaskID), formatTime(s.StartedAt), nullableString(s.Notes))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSessionRow updates a session row's mutable fields.
func (db *DB) UpdateSessionRow(s *models.Session) error {
	_, err := db.Exec(`
		UPDATE sessions SET current_task_id = ?, notes = ? WHERE id = ?
	`, nullableString(s.CurrentTaskID), nullableString(s.Notes), s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// GetSessionRow retrieves a session by ID. Returns nil, nil if not found.
func (db *DB) GetSessionRow(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, current_task_id, started_at, notes FROM sessions WHERE id = ?
	`, id)

	var s models.Session
	var currentTaskID, notes sql.NullString
	var startedAt string
	err := row.Scan(&s.ID, &currentTaskID, &startedAt, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.CurrentTaskID = currentTaskID.String
	s.Notes = notes.String
	s.StartedAt, _ = parseTime(startedAt)
	return &s, nil
}

// LatestSessionRow returns the most recently started session, if any,
// used to resume on cold start when SESSION_STATE.md is unavailable.
func (db *DB) LatestSessionRow() (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, current_task_id, started_at, notes FROM sessions ORDER BY started_at DESC LIMIT 1
	`)

	var s models.Session
	var currentTaskID, notes sql.NullString
	var startedAt string
	err := row.Scan(&s.ID, &currentTaskID, &startedAt, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest session: %w", err)
	}

	s.CurrentTaskID = currentTaskID.String
	s.Notes = notes.String
	s.StartedAt, _ = parseTime(startedAt)
	return &s, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
