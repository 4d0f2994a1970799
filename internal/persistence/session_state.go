package persistence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

const sessionStateFileName = "SESSION_STATE.md"

// SessionStateSnapshot is everything WriteSessionState renders and
// ParseSessionState recovers (spec.md §4.3).
type SessionStateSnapshot struct {
	SessionID     string
	CurrentTask   *models.Task
	ReadyTasks    []*models.Task
	BlockedTasks  []*models.Task
	BlockedBy     map[string][]string // task ID -> blocking task IDs
	RecentlyDone  []*models.Task
	Notes         string
}

// WriteSessionState renders the human-readable snapshot with the fixed
// section headers the reverse parser depends on.
func WriteSessionState(snap SessionStateSnapshot, dir string) error {
	path := filepath.Join(dir, sessionStateFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Session State")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session ID: %s\n", snap.SessionID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Current Task")
	fmt.Fprintln(w)
	if snap.CurrentTask != nil {
		fmt.Fprintf(w, "ID: %s\n", snap.CurrentTask.ID)
		fmt.Fprintf(w, "Title: %s\n", snap.CurrentTask.Title)
		fmt.Fprintf(w, "Status: %s\n", snap.CurrentTask.Status)
	} else {
		fmt.Fprintln(w, "(none)")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "## Ready Queue (%d)\n", len(snap.ReadyTasks))
	fmt.Fprintln(w)
	for _, task := range snap.ReadyTasks {
		fmt.Fprintf(w, "- [P%d] %s: %s\n", int(task.Priority), task.ID, task.Title)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "## Blocked (%d)\n", len(snap.BlockedTasks))
	fmt.Fprintln(w)
	for _, task := range snap.BlockedTasks {
		blockers := snap.BlockedBy[task.ID]
		fmt.Fprintf(w, "- [P%d] %s: %s (blocked by: %s)\n",
			int(task.Priority), task.ID, task.Title, strings.Join(blockers, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Recently Completed")
	fmt.Fprintln(w)
	for _, task := range snap.RecentlyDone {
		fmt.Fprintf(w, "- %s: %s\n", task.ID, task.Title)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Session Notes")
	fmt.Fprintln(w)
	if snap.Notes != "" {
		fmt.Fprintln(w, snap.Notes)
	}

	return w.Flush()
}

// ParsedSessionState is the reduced recovery state the reverse parser
// extracts on cold start, per spec.md §4.3/scenario 5.
type ParsedSessionState struct {
	SessionID     string
	CurrentTaskID string
	ReadyCount    int
	BlockedCount  int
}

// ParseSessionState reverse-parses SESSION_STATE.md, tolerating a missing
// current task (parsed as empty CurrentTaskID).
func ParseSessionState(dir string) (*ParsedSessionState, error) {
	path := filepath.Join(dir, sessionStateFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var state ParsedSessionState
	scanner := bufio.NewScanner(f)

	section := ""
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")

		switch {
		case strings.HasPrefix(line, "Session ID:"):
			state.SessionID = strings.TrimSpace(strings.TrimPrefix(line, "Session ID:"))
		case strings.HasPrefix(line, "## Current Task"):
			section = "current"
		case strings.HasPrefix(line, "## Ready Queue"):
			section = "ready"
			state.ReadyCount = extractCount(line)
		case strings.HasPrefix(line, "## Blocked"):
			section = "blocked"
			state.BlockedCount = extractCount(line)
		case strings.HasPrefix(line, "## "):
			section = ""
		case section == "current" && strings.HasPrefix(line, "ID:"):
			state.CurrentTaskID = strings.TrimSpace(strings.TrimPrefix(line, "ID:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return &state, nil
}

// extractCount pulls the "(N)" suffix out of a section header like
// "## Ready Queue (2)".
func extractCount(header string) int {
	open := strings.LastIndex(header, "(")
	closeIdx := strings.LastIndex(header, ")")
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[open+1 : closeIdx]))
	if err != nil {
		return 0
	}
	return n
}

// BuildSnapshot assembles a SessionStateSnapshot from live store state.
func BuildSnapshot(st *store.Store, sessionID string, current *models.Task, recentlyDone []*models.Task, notes string) SessionStateSnapshot {
	ready := st.GetReadyTasks()
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

	blocked := st.ListTasks(store.ListFilter{Status: models.TaskStatusBlocked})
	blockedBy := make(map[string][]string, len(blocked))
	for _, task := range blocked {
		blockedBy[task.ID] = st.GetBlockedBy(task.ID)
	}

	return SessionStateSnapshot{
		SessionID:    sessionID,
		CurrentTask:  current,
		ReadyTasks:   ready,
		BlockedTasks: blocked,
		BlockedBy:    blockedBy,
		RecentlyDone: recentlyDone,
		Notes:        notes,
	}
}
