package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomharness/loom/internal/persistence"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/state"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and task state",
	Long: `Print the most recent session, the current task, and the ready
and blocked queues, hydrated from .tasks/*.jsonl the same way 'run' does.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open task database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate task database: %w", err)
	}

	session, err := db.LatestSessionRow()
	if err != nil {
		return fmt.Errorf("read latest session: %w", err)
	}

	st := store.New()
	tasksDir := filepath.Join(cwd, ".tasks")
	if _, err := os.Stat(tasksDir); err == nil {
		if _, err := persistence.ImportTasks(st, tasksDir); err != nil {
			return fmt.Errorf("import %s/tasks.jsonl: %w", tasksDir, err)
		}
		if _, err := persistence.ImportDependencies(st, tasksDir); err != nil {
			return fmt.Errorf("import %s/dependencies.jsonl: %w", tasksDir, err)
		}
	}

	sched := scheduler.New(st)
	if session != nil {
		sched.RestoreSession(session.ID, session.CurrentTaskID, session.StartedAt)
	}

	if session == nil {
		fmt.Println("No session recorded yet. Run 'loomd run' to start one.")
	} else {
		displaySession(session)
	}

	fmt.Println()
	displayCurrentTask(sched)

	fmt.Println()
	displayTaskCounts(st)

	fmt.Println()
	return displayQueues(st, sched)
}

func displaySession(s *models.Session) {
	fmt.Printf("Session: %s\n", s.ID)
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(s.StartedAt)))
	if s.Notes != "" {
		fmt.Printf("  Notes: %s\n", s.Notes)
	}
}

func displayCurrentTask(sched *scheduler.Scheduler) {
	task := sched.GetCurrentTask()
	if task == nil {
		fmt.Println("Current task: none")
		return
	}
	fmt.Printf("Current task: %s \"%s\" (%s, %s)\n", task.ID, task.Title, task.Status, task.Priority)
}

func displayTaskCounts(st *store.Store) {
	tasks := st.ListTasks(store.ListFilter{})
	counts := make(map[models.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}

	fmt.Printf("Tasks: %d total\n", len(tasks))
	for _, status := range []models.TaskStatus{
		models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusBlocked,
		models.TaskStatusCompleted, models.TaskStatusCancelled,
	} {
		if n := counts[status]; n > 0 {
			fmt.Printf("  %s: %d\n", status, n)
		}
	}
}

func displayQueues(st *store.Store, sched *scheduler.Scheduler) error {
	ready := sched.ElectionOrder()
	fmt.Printf("Ready (%d):\n", len(ready))
	if len(ready) == 0 {
		fmt.Println("  none")
	}
	for _, t := range ready {
		fmt.Printf("  %s \"%s\" (%s)\n", t.ID, t.Title, t.Priority)
	}

	blocked := st.ListTasks(store.ListFilter{Status: models.TaskStatusBlocked})
	if len(blocked) == 0 {
		return nil
	}
	fmt.Printf("\nBlocked (%d):\n", len(blocked))
	for _, t := range blocked {
		reason := latestBlockReason(st, t.ID)
		if reason != "" {
			fmt.Printf("  %s \"%s\": %s\n", t.ID, t.Title, reason)
		} else {
			fmt.Printf("  %s \"%s\"\n", t.ID, t.Title)
		}
	}
	return nil
}

// latestBlockReason returns the most recent "BLOCKED: " comment on task
// id, if any, for a one-line status hint.
func latestBlockReason(st *store.Store, taskID string) string {
	task, err := st.GetTask(taskID)
	if err != nil {
		return ""
	}
	for i := len(task.Comments) - 1; i >= 0; i-- {
		if strings.HasPrefix(task.Comments[i].Content, "BLOCKED: ") {
			return strings.TrimPrefix(task.Comments[i].Content, "BLOCKED: ")
		}
	}
	return ""
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
