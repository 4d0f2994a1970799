package persistence

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loomharness/loom/internal/git"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

// SyncOptions configures SyncAll.
type SyncOptions struct {
	// Dir is the directory export/import files live in, conventionally
	// ".tasks" under the repo root.
	Dir string
	// RecentlyDone is included in the SESSION_STATE.md snapshot.
	RecentlyDone []string
	// Notes is copied verbatim into the Session Notes section.
	Notes string
	// SyncBranch, if set, routes the commit onto this branch instead of
	// the caller's current branch, so task commits don't interleave with
	// feature work (spec.md §4.3). The branch is checked out in the
	// caller's working tree, created from the current HEAD if it does not
	// exist yet, and stays checked out after SyncAll returns; it is not an
	// orphan branch and no separate worktree is used.
	SyncBranch string
}

// SyncResult reports what SyncAll did.
type SyncResult struct {
	Tasks        ExportResult
	Dependencies ExportResult
	Committed    bool
}

// SyncAll exports tasks and dependencies, writes SESSION_STATE.md, and
// commits the result: export tasks -> export deps -> write
// SESSION_STATE -> git add .tasks/ -> git commit. A commit failure due to
// nothing staged (git exit code 1) is not treated as an error.
func SyncAll(st *store.Store, sched *scheduler.Scheduler, runner git.Runner, opts SyncOptions) (SyncResult, error) {
	var result SyncResult

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return result, fmt.Errorf("create %s: %w", opts.Dir, err)
	}

	taskResult, err := ExportTasks(st, opts.Dir)
	if err != nil {
		return result, fmt.Errorf("export tasks: %w", err)
	}
	result.Tasks = taskResult

	depResult, err := ExportDependencies(st, opts.Dir)
	if err != nil {
		return result, fmt.Errorf("export dependencies: %w", err)
	}
	result.Dependencies = depResult

	var sessionID string
	if session := sched.CurrentSession(); session != nil {
		sessionID = session.ID
	}

	var recentlyDone []*models.Task
	for _, id := range opts.RecentlyDone {
		task, err := st.GetTask(id)
		if err != nil {
			continue
		}
		recentlyDone = append(recentlyDone, task)
	}

	snapshot := BuildSnapshot(st, sessionID, sched.GetCurrentTask(), recentlyDone, opts.Notes)
	if err := WriteSessionState(snapshot, opts.Dir); err != nil {
		return result, fmt.Errorf("write session state: %w", err)
	}

	if runner == nil {
		return result, nil
	}

	if opts.SyncBranch != "" {
		if err := ensureOnSyncBranch(runner, opts.SyncBranch); err != nil {
			return result, fmt.Errorf("switch to sync branch %s: %w", opts.SyncBranch, err)
		}
	}

	addPath, err := filepath.Abs(opts.Dir)
	if err != nil {
		addPath = opts.Dir
	}
	if err := runner.Add(addPath); err != nil {
		return result, fmt.Errorf("git add %s: %w", addPath, err)
	}

	err = runner.Commit(fmt.Sprintf("sync tasks (%d tasks, %d dependencies)", taskResult.Written, depResult.Written))
	if err == nil {
		result.Committed = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// Nothing to commit; not an error (spec.md §4.3).
		return result, nil
	}
	return result, fmt.Errorf("git commit: %w", err)
}

func ensureOnSyncBranch(runner git.Runner, branch string) error {
	exists, err := runner.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		return runner.CheckoutBranch(branch)
	}
	return runner.CreateAndCheckoutBranch(branch)
}
