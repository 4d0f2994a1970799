// Package persistence implements loom's file-backed export/import layer
// (spec.md §4.3): tasks.jsonl and dependencies.jsonl as the git-trackable
// source of truth, SESSION_STATE.md as a human-readable snapshot, and
// sync_all tying both to a git commit.
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

const (
	tasksFileName        = "tasks.jsonl"
	dependenciesFileName = "dependencies.jsonl"
)

// ExportResult reports what ExportTasks/ExportDependencies wrote.
type ExportResult struct {
	Written int
	Skipped int
}

// ExportTasks writes every non-wisp task in st to tasks.jsonl under dir,
// one JSON object per line, sorted by ID for a stable diff. Wisps are
// ephemeral by definition and never persisted (spec.md §3).
func ExportTasks(st *store.Store, dir string) (ExportResult, error) {
	tasks := st.ListTasks(store.ListFilter{})

	path := filepath.Join(dir, tasksFileName)
	f, err := os.Create(path)
	if err != nil {
		return ExportResult{}, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var result ExportResult
	for _, task := range tasks {
		if task.TaskType == models.TaskTypeWisp {
			result.Skipped++
			continue
		}
		line, err := json.Marshal(task)
		if err != nil {
			return result, fmt.Errorf("marshal task %s: %w", task.ID, err)
		}
		if _, err := w.Write(line); err != nil {
			return result, fmt.Errorf("write task %s: %w", task.ID, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return result, fmt.Errorf("write newline: %w", err)
		}
		result.Written++
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("flush %s: %w", path, err)
	}
	return result, nil
}

// ExportDependencies writes every dependency edge in st to
// dependencies.jsonl under dir.
func ExportDependencies(st *store.Store, dir string) (ExportResult, error) {
	edges := st.ListDependencies()

	path := filepath.Join(dir, dependenciesFileName)
	f, err := os.Create(path)
	if err != nil {
		return ExportResult{}, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var result ExportResult
	for _, dep := range edges {
		line, err := json.Marshal(dep)
		if err != nil {
			return result, fmt.Errorf("marshal dependency %s->%s: %w", dep.SrcID, dep.DstID, err)
		}
		if _, err := w.Write(line); err != nil {
			return result, fmt.Errorf("write dependency: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return result, fmt.Errorf("write newline: %w", err)
		}
		result.Written++
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("flush %s: %w", path, err)
	}
	return result, nil
}

// ImportResult reports what ImportTasks did with each row it read,
// grounded on the teacher's JSONL importer's Result shape (Created/
// Updated/Unchanged/Skipped counters) trimmed to what loom's single-repo,
// single-writer model needs.
type ImportResult struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
}

// ImportTasks reads tasks.jsonl from dir and applies each row to st.
// Import is collision-tolerant: a row whose ID already exists locally is
// applied only if its UpdatedAt is newer than the local copy (last-writer
// wins); a row with the same UpdatedAt and status is counted as
// Unchanged, and any other row is left alone and counted as Skipped,
// never erroring out the whole import over one stale row.
func ImportTasks(st *store.Store, dir string) (ImportResult, error) {
	path := filepath.Join(dir, tasksFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ImportResult{}, nil
		}
		return ImportResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var result ImportResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var task models.Task
		if err := json.Unmarshal(line, &task); err != nil {
			return result, fmt.Errorf("parse %s line %d: %w", path, lineNo, err)
		}

		existing, getErr := st.GetTask(task.ID)
		if getErr != nil {
			if _, err := st.CreateTask(store.CreateTaskParams{
				ID:          task.ID,
				Title:       task.Title,
				Description: task.Description,
				Priority:    task.Priority,
				TaskType:    task.TaskType,
				Labels:      task.Labels,
				ParentID:    task.ParentID,
				CreatedAt:   task.CreatedAt,
				UpdatedAt:   task.UpdatedAt,
			}); err != nil {
				return result, fmt.Errorf("import task %s: %w", task.ID, err)
			}
			result.Created++
			continue
		}

		switch {
		case existing.UpdatedAt.Equal(task.UpdatedAt) && existing.Status == task.Status:
			result.Unchanged++
		case task.UpdatedAt.After(existing.UpdatedAt):
			if err := applyImportedTask(st, &task); err != nil {
				return result, fmt.Errorf("update task %s: %w", task.ID, err)
			}
			result.Updated++
		default:
			result.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan %s: %w", path, err)
	}
	return result, nil
}

func applyImportedTask(st *store.Store, task *models.Task) error {
	if err := st.UpdateStatus(task.ID, task.Status); err != nil {
		return err
	}
	if err := st.UpdatePriority(task.ID, task.Priority); err != nil {
		return err
	}
	if err := st.UpdateTitle(task.ID, task.Title); err != nil {
		return err
	}
	return nil
}

// ImportDependencies reads dependencies.jsonl and adds any edge missing
// from st, skipping edges that already exist or would form a cycle
// rather than aborting the whole import.
func ImportDependencies(st *store.Store, dir string) (ImportResult, error) {
	path := filepath.Join(dir, dependenciesFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ImportResult{}, nil
		}
		return ImportResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var result ImportResult
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var dep models.Dependency
		if err := json.Unmarshal(line, &dep); err != nil {
			return result, fmt.Errorf("parse %s line %d: %w", path, lineNo, err)
		}

		if err := st.AddDependency(dep.SrcID, dep.DstID, dep.Type); err != nil {
			result.Skipped++
			continue
		}
		result.Created++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan %s: %w", path, err)
	}
	return result, nil
}
