package orchestrator

import (
	"strings"
	"testing"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

func TestBuildKickbackPrompt_ConcatenatesMostRecentBlockedReasonPerTask(t *testing.T) {
	s := store.New()

	a, _ := s.CreateTask(store.CreateTaskParams{Title: "Refactor auth"})
	s.AddComment(a, "questioner", "BLOCKED: too broad")
	s.UpdateStatus(a, models.TaskStatusBlocked)
	// a second, stale BLOCKED: comment; the most recent one should win.
	s.AddComment(a, "questioner", "BLOCKED: needs acceptance criteria")

	b, _ := s.CreateTask(store.CreateTaskParams{Title: "Wire up metrics"})
	s.AddComment(b, "questioner", "BLOCKED: unclear which backend")
	s.UpdateStatus(b, models.TaskStatusBlocked)

	prompt := BuildKickbackPrompt(s)
	if !strings.Contains(prompt, "needs acceptance criteria") {
		t.Errorf("prompt = %q, want the most recent BLOCKED: reason for task a", prompt)
	}
	if strings.Contains(prompt, "too broad") {
		t.Errorf("prompt = %q, want the stale BLOCKED: reason suppressed", prompt)
	}
	if !strings.Contains(prompt, "unclear which backend") {
		t.Errorf("prompt = %q, want task b's reason included", prompt)
	}
}

func TestBuildKickbackPrompt_IgnoresCommentOnNonBlockedTask(t *testing.T) {
	s := store.New()

	id, _ := s.CreateTask(store.CreateTaskParams{Title: "task"})
	s.AddComment(id, "questioner", "BLOCKED: stale, task got unblocked later")
	// status never transitioned to blocked (e.g. comment predates a fix).

	if prompt := BuildKickbackPrompt(s); prompt != "" {
		t.Errorf("prompt = %q, want empty for a non-blocked task", prompt)
	}
}

func TestBuildKickbackPrompt_NoBlockedTasksIsEmpty(t *testing.T) {
	s := store.New()
	s.CreateTask(store.CreateTaskParams{Title: "task"})

	if prompt := BuildKickbackPrompt(s); prompt != "" {
		t.Errorf("prompt = %q, want empty", prompt)
	}
}

func TestBuildRevisionPrompt_MentionsTaskAndReason(t *testing.T) {
	task := &models.Task{ID: "abc123", Title: "add retries"}
	prompt := BuildRevisionPrompt(task, "missing tests")
	if !strings.Contains(prompt, "abc123") || !strings.Contains(prompt, "missing tests") {
		t.Errorf("prompt = %q, want it to mention the task ID and rejection reason", prompt)
	}
	if !strings.HasPrefix(prompt, "REVISION:") {
		t.Errorf("prompt = %q, want it to start with %q", prompt, "REVISION:")
	}
}
