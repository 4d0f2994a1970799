package state

import (
	"testing"
	"time"

	"github.com/loomharness/loom/pkg/models"
)

func TestCreateSessionRow_AndGet(t *testing.T) {
	db := openTestDB(t)
	started := time.Now().Truncate(time.Second)
	session := &models.Session{ID: "1700000000-abcd", StartedAt: started, Notes: "first run"}

	if err := db.CreateSessionRow(session); err != nil {
		t.Fatalf("CreateSessionRow: %v", err)
	}

	got, err := db.GetSessionRow(session.ID)
	if err != nil {
		t.Fatalf("GetSessionRow: %v", err)
	}
	if got == nil || got.Notes != "first run" {
		t.Fatalf("got = %+v, want Notes=\"first run\"", got)
	}
	if got.CurrentTaskID != "" {
		t.Errorf("CurrentTaskID = %q, want empty", got.CurrentTaskID)
	}
}

func TestUpdateSessionRow(t *testing.T) {
	db := openTestDB(t)
	session := &models.Session{ID: "1700000000-abcd", StartedAt: time.Now()}
	if err := db.CreateSessionRow(session); err != nil {
		t.Fatalf("CreateSessionRow: %v", err)
	}

	session.CurrentTaskID = "a1b2c3d4"
	session.Notes = "working on it"
	if err := db.UpdateSessionRow(session); err != nil {
		t.Fatalf("UpdateSessionRow: %v", err)
	}

	got, err := db.GetSessionRow(session.ID)
	if err != nil {
		t.Fatalf("GetSessionRow: %v", err)
	}
	if got.CurrentTaskID != "a1b2c3d4" {
		t.Errorf("CurrentTaskID = %q, want a1b2c3d4", got.CurrentTaskID)
	}
}

func TestLatestSessionRow(t *testing.T) {
	db := openTestDB(t)
	older := &models.Session{ID: "1699999999-aaaa", StartedAt: time.Now().Add(-time.Hour)}
	newer := &models.Session{ID: "1700000099-bbbb", StartedAt: time.Now()}

	if err := db.CreateSessionRow(older); err != nil {
		t.Fatalf("CreateSessionRow: %v", err)
	}
	if err := db.CreateSessionRow(newer); err != nil {
		t.Fatalf("CreateSessionRow: %v", err)
	}

	got, err := db.LatestSessionRow()
	if err != nil {
		t.Fatalf("LatestSessionRow: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("LatestSessionRow = %v, want %s", got, newer.ID)
	}
}

func TestGetSessionRow_NotFound(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetSessionRow("missing")
	if err != nil {
		t.Fatalf("GetSessionRow: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}
