package orchestrator

import (
	"strings"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

// Decision is the outcome of one routing step: either the next Command to
// enqueue, or Terminate if the control loop has nothing further to do.
type Decision struct {
	Command   Command
	Terminate bool
}

// route implements spec.md §4.4's routing table: which command to enqueue
// next given the agent that just finished and taskID, the task it was
// working on (ignored for Planner/Questioner, which are not scoped to a
// single task).
func route(s *store.Store, finished CommandType, taskID string) Decision {
	switch finished {
	case StartPlanner:
		return afterPlanner()
	case StartQuestioner:
		return afterQuestioner(s)
	case StartTinkerer:
		return afterTinkerer(s, taskID)
	case StartJudge:
		return afterJudge(s, taskID)
	default:
		return Decision{Terminate: true}
	}
}

// afterPlanner always hands off to the Questioner to find the next ready
// task.
func afterPlanner() Decision {
	return Decision{Command: Command{Type: StartQuestioner, Display: "Questioner"}}
}

// afterQuestioner kicks back to the Planner when tasks are blocked and
// nothing is ready, moves to the Tinkerer when a ready task exists, and
// terminates when neither holds.
func afterQuestioner(s *store.Store) Decision {
	blocked := s.ListTasks(store.ListFilter{Status: models.TaskStatusBlocked})
	ready := s.GetReadyTasks()

	if len(blocked) > 0 && len(ready) == 0 {
		return Decision{Command: Command{
			Type:    StartPlanner,
			Prompt:  BuildKickbackPrompt(s),
			Display: "Planner (kickback)",
		}}
	}
	if len(ready) > 0 {
		return Decision{Command: Command{Type: StartTinkerer, Display: "Tinkerer"}}
	}
	return Decision{Terminate: true}
}

// afterTinkerer kicks back to the Planner if the task it was working on
// ended up blocked, otherwise hands off to the Judge for review.
func afterTinkerer(s *store.Store, taskID string) Decision {
	if taskID != "" {
		if task, err := s.GetTask(taskID); err == nil && task.Status == models.TaskStatusBlocked {
			return Decision{Command: Command{
				Type:    StartPlanner,
				Prompt:  BuildKickbackPrompt(s),
				Display: "Planner (kickback)",
			}}
		}
	}
	return Decision{Command: Command{Type: StartJudge, Display: "Judge"}}
}

// afterJudge sends the task back to the Tinkerer with a revision prompt
// if the Judge's most recent comment was a rejection; otherwise treats
// the task as approved and either continues to the Questioner (more
// ready work remains) or terminates.
func afterJudge(s *store.Store, taskID string) Decision {
	if taskID != "" {
		if task, err := s.GetTask(taskID); err == nil {
			if reason, ok := lastCommentIsRejection(task.Comments); ok {
				return Decision{Command: Command{
					Type:    StartTinkerer,
					Prompt:  BuildRevisionPrompt(task, reason),
					Display: "Tinkerer (revision)",
				}}
			}
		}
	}

	if len(s.GetReadyTasks()) > 0 {
		return Decision{Command: Command{Type: StartQuestioner, Display: "Questioner"}}
	}
	return Decision{Terminate: true}
}

// lastCommentIsRejection reports whether the task's single most recent
// comment begins with REJECTED:, per spec.md §4.4's exact wording ("most
// recent comment", not "most recent REJECTED: comment").
func lastCommentIsRejection(comments []models.Comment) (string, bool) {
	if len(comments) == 0 {
		return "", false
	}
	last := comments[len(comments)-1]
	if !strings.HasPrefix(last.Content, commentRejected) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(last.Content, commentRejected)), true
}
