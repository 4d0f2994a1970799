package state

import (
	"testing"
	"time"

	"github.com/loomharness/loom/pkg/models"
)

func TestUpsertTask_InsertThenGet(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Truncate(time.Second)
	task := &models.Task{
		ID:        "a1b2c3d4",
		Title:     "write docs",
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityHigh,
		TaskType:  models.TaskTypeTask,
		Labels:    []string{"docs", "backend"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	got, err := db.GetTaskRow(task.ID)
	if err != nil {
		t.Fatalf("GetTaskRow: %v", err)
	}
	if got == nil {
		t.Fatal("GetTaskRow returned nil")
	}
	if got.Title != task.Title || got.Priority != task.Priority {
		t.Errorf("got %+v, want title/priority matching %+v", got, task)
	}
	if len(got.Labels) != 2 || got.Labels[0] != "docs" {
		t.Errorf("Labels = %v, want [docs backend]", got.Labels)
	}
}

func TestUpsertTask_UpdatesExistingRow(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().Truncate(time.Second)

	task := &models.Task{ID: "a1b2c3d4", Title: "v1", Status: models.TaskStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	task.Status = models.TaskStatusCompleted
	completed := now.Add(time.Hour)
	task.CompletedAt = &completed
	task.UpdatedAt = completed
	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask update: %v", err)
	}

	got, err := db.GetTaskRow(task.ID)
	if err != nil {
		t.Fatalf("GetTaskRow: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt is nil after update")
	}
}

func TestGetTaskRow_NotFound(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetTaskRow("missing")
	if err != nil {
		t.Fatalf("GetTaskRow: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestDeleteTaskRow(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	task := &models.Task{ID: "a1b2c3d4", Title: "t", CreatedAt: now, UpdatedAt: now}
	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	if err := db.DeleteTaskRow(task.ID); err != nil {
		t.Fatalf("DeleteTaskRow: %v", err)
	}
	got, err := db.GetTaskRow(task.ID)
	if err != nil {
		t.Fatalf("GetTaskRow: %v", err)
	}
	if got != nil {
		t.Errorf("task still present after delete: %+v", got)
	}
}

func TestListTaskRows_FiltersByStatus(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	pending := &models.Task{ID: "11111111", Title: "p", Status: models.TaskStatusPending, CreatedAt: now, UpdatedAt: now}
	done := &models.Task{ID: "22222222", Title: "d", Status: models.TaskStatusCompleted, CreatedAt: now, UpdatedAt: now}
	for _, task := range []*models.Task{pending, done} {
		if err := db.UpsertTask(task); err != nil {
			t.Fatalf("UpsertTask: %v", err)
		}
	}

	status := models.TaskStatusPending
	rows, err := db.ListTaskRows(&status)
	if err != nil {
		t.Fatalf("ListTaskRows: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != pending.ID {
		t.Fatalf("ListTaskRows(pending) = %v, want only %s", rows, pending.ID)
	}

	all, err := db.ListTaskRows(nil)
	if err != nil {
		t.Fatalf("ListTaskRows(nil): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListTaskRows(nil) = %d rows, want 2", len(all))
	}
}
