package state

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/loomharness/loom/pkg/models"
)

// TaskRow CRUD operations. These persist the row shape of models.Task;
// Comments are not stored relationally (they live in the JSONL export;
// SESSION_STATE.md does not render them), matching spec.md §4.3's split between the
// transactional row store and the append-only audit trail.

// UpsertTask inserts or replaces a task row.
func (db *DB) UpsertTask(t *models.Task) error {
	var completedAt *string
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		completedAt = &s
	}

	_, err := db.Exec(`
		INSERT INTO tasks (id, parent_id, title, description, status, priority, task_type, labels, blocked_by_count, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			task_type = excluded.task_type,
			labels = excluded.labels,
			blocked_by_count = excluded.blocked_by_count,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`, t.ID, t.ParentID, t.Title, t.Description, string(t.Status), int(t.Priority), string(t.TaskType),
		strings.Join(t.Labels, ","), t.BlockedByCount, formatTime(t.CreatedAt), formatTime(t.UpdatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// GetTaskRow retrieves a task row by ID. Returns nil, nil if not found.
func (db *DB) GetTaskRow(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, parent_id, title, description, status, priority, task_type, labels, blocked_by_count, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTaskRow(row)
}

func scanTaskRow(row *sql.Row) (*models.Task, error) {
	var t models.Task
	var parentID, labels sql.NullString
	var priority int
	var status, taskType string
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(&t.ID, &parentID, &t.Title, &t.Description, &status, &priority, &taskType,
		&labels, &t.BlockedByCount, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	t.ParentID = parentID.String
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.TaskType = models.TaskType(taskType)
	if labels.Valid && labels.String != "" {
		t.Labels = strings.Split(labels.String, ",")
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// DeleteTaskRow deletes a task row by ID.
func (db *DB) DeleteTaskRow(id string) error {
	_, err := db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListTaskRows lists all task rows, optionally filtered by status.
func (db *DB) ListTaskRows(status *models.TaskStatus) ([]*models.Task, error) {
	var rows *sql.Rows
	var err error

	const cols = `SELECT id, parent_id, title, description, status, priority, task_type, labels, blocked_by_count, created_at, updated_at, completed_at FROM tasks`
	if status != nil {
		rows, err = db.Query(cols+` WHERE status = ? ORDER BY id`, string(*status))
	} else {
		rows, err = db.Query(cols + ` ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		var t models.Task
		var parentID, labels sql.NullString
		var priority int
		var st, taskType string
		var createdAt, updatedAt string
		var completedAt sql.NullString

		if err := rows.Scan(&t.ID, &parentID, &t.Title, &t.Description, &st, &priority, &taskType,
			&labels, &t.BlockedByCount, &createdAt, &updatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ParentID = parentID.String
		t.Status = models.TaskStatus(st)
		t.Priority = models.Priority(priority)
		t.TaskType = models.TaskType(taskType)
		if labels.Valid && labels.String != "" {
			t.Labels = strings.Split(labels.String, ",")
		}
		t.CreatedAt, _ = parseTime(createdAt)
		t.UpdatedAt, _ = parseTime(updatedAt)
		t.CompletedAt = parseNullableTime(completedAt)
		out = append(out, &t)
	}
	return out, nil
}
