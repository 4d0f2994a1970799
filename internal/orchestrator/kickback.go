package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

// Comment prefixes the routing table keys off (spec.md §4.4).
const (
	commentBlocked  = "BLOCKED:"
	commentRejected = "REJECTED:"
)

// BuildKickbackPrompt synthesizes a single Planner-facing instruction from
// every currently-blocked task's most recent BLOCKED: comment. Grounded on
// the teacher's escalation.go, which turns structured task/result state
// into an operator-facing message; generalized here to comment-prefix
// scanning over the task store instead of a retry/skip/abort decision.
func BuildKickbackPrompt(s *store.Store) string {
	tasks := s.GetTasksWithCommentPrefix(commentBlocked)

	var reasons []string
	for _, t := range tasks {
		if t.Status != models.TaskStatusBlocked {
			continue
		}
		reason, ok := lastCommentWithPrefix(t.Comments, commentBlocked)
		if !ok {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("- %s (%s): %s", t.Title, t.ID, reason))
	}
	if len(reasons) == 0 {
		return ""
	}
	sort.Strings(reasons)

	return "The following tasks are blocked and need replanning:\n" + strings.Join(reasons, "\n")
}

// BuildRevisionPrompt synthesizes a Tinkerer-facing instruction from a
// Judge's REJECTED: comment on task.
func BuildRevisionPrompt(task *models.Task, reason string) string {
	return fmt.Sprintf("REVISION: Task %q (%s) was rejected by the judge: %s", task.Title, task.ID, reason)
}

// lastCommentWithPrefix returns the content following the most recently
// appended comment with the given prefix, if any.
func lastCommentWithPrefix(comments []models.Comment, prefix string) (string, bool) {
	var reason string
	found := false
	for _, c := range comments {
		if strings.HasPrefix(c.Content, prefix) {
			reason = strings.TrimSpace(strings.TrimPrefix(c.Content, prefix))
			found = true
		}
	}
	return reason, found
}
