package orchestrator

import (
	"strings"
	"testing"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

func TestRoute_AfterPlanner_AlwaysEnqueuesQuestioner(t *testing.T) {
	s := store.New()
	decision := route(s, StartPlanner, "")
	if decision.Terminate {
		t.Fatal("expected a command, not termination")
	}
	if decision.Command.Type != StartQuestioner {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartQuestioner)
	}
}

func TestRoute_AfterQuestioner_BlockedAndNoReadyKicksBackToPlanner(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "Refactor auth"})
	s.AddComment(id, "questioner", "BLOCKED: too broad")
	s.UpdateStatus(id, models.TaskStatusBlocked)

	decision := route(s, StartQuestioner, "")
	if decision.Terminate {
		t.Fatal("expected a kickback command, not termination")
	}
	if decision.Command.Type != StartPlanner {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartPlanner)
	}
	if !strings.Contains(decision.Command.Prompt, "too broad") {
		t.Errorf("Prompt = %q, want it to contain the blocked reason", decision.Command.Prompt)
	}
}

func TestRoute_AfterQuestioner_ReadyTaskGoesToTinkerer(t *testing.T) {
	s := store.New()
	s.CreateTask(store.CreateTaskParams{Title: "ready task"})

	decision := route(s, StartQuestioner, "")
	if decision.Terminate {
		t.Fatal("expected a command, not termination")
	}
	if decision.Command.Type != StartTinkerer {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartTinkerer)
	}
}

func TestRoute_AfterQuestioner_NeitherTerminates(t *testing.T) {
	s := store.New()
	decision := route(s, StartQuestioner, "")
	if !decision.Terminate {
		t.Errorf("decision = %+v, want Terminate", decision)
	}
}

func TestRoute_AfterTinkerer_TaskBlockedKicksBackToPlanner(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "task"})
	s.AddComment(id, "tinkerer", "BLOCKED: discovered a missing dependency")
	s.UpdateStatus(id, models.TaskStatusBlocked)

	decision := route(s, StartTinkerer, id)
	if decision.Command.Type != StartPlanner {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartPlanner)
	}
}

func TestRoute_AfterTinkerer_OtherwiseGoesToJudge(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "task"})

	decision := route(s, StartTinkerer, id)
	if decision.Command.Type != StartJudge {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartJudge)
	}
}

func TestRoute_AfterJudge_RejectedGoesToTinkererWithRevisionPrompt(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "add retries"})
	s.AddComment(id, "judge", "REJECTED: missing tests")

	decision := route(s, StartJudge, id)
	if decision.Command.Type != StartTinkerer {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartTinkerer)
	}
	if !strings.Contains(decision.Command.Prompt, "missing tests") {
		t.Errorf("Prompt = %q, want it to contain the rejection reason", decision.Command.Prompt)
	}
	if !strings.HasPrefix(decision.Command.Prompt, "REVISION:") {
		t.Errorf("Prompt = %q, want it to start with %q", decision.Command.Prompt, "REVISION:")
	}
}

func TestRoute_AfterJudge_ApprovedWithReadyRemainingGoesToQuestioner(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "done task"})
	s.AddComment(id, "judge", "APPROVED: looks good")
	s.CreateTask(store.CreateTaskParams{Title: "next ready task"})

	decision := route(s, StartJudge, id)
	if decision.Command.Type != StartQuestioner {
		t.Errorf("Command.Type = %q, want %q", decision.Command.Type, StartQuestioner)
	}
}

func TestRoute_AfterJudge_ApprovedWithNothingRemainingTerminates(t *testing.T) {
	s := store.New()
	id, _ := s.CreateTask(store.CreateTaskParams{Title: "done task"})
	s.AddComment(id, "judge", "APPROVED: looks good")
	s.CompleteTask(id)

	decision := route(s, StartJudge, id)
	if !decision.Terminate {
		t.Errorf("decision = %+v, want Terminate", decision)
	}
}

func TestRoute_UnknownCommandTerminates(t *testing.T) {
	s := store.New()
	decision := route(s, CommandType("bogus"), "")
	if !decision.Terminate {
		t.Errorf("decision = %+v, want Terminate", decision)
	}
}
