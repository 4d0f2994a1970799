// Package scheduler wraps the task store with session tracking and
// current-task election (spec.md §4.2). Generalized from the teacher's
// internal/orchestrator/scheduler.go (tier-based agent slot scheduling)
// down to the session/current-task bookkeeping the spec actually needs;
// ready-queue ordering and cycle detection stay in internal/store.
package scheduler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

var (
	// ErrNoActiveSession reports an operation attempted before StartSession
	// or RestoreSession.
	ErrNoActiveSession = errors.New("no active session")
	// ErrTaskNotElectable reports set_current_task on a task that is a
	// molecule, or whose status is outside {pending, in_progress}.
	ErrTaskNotElectable = errors.New("task is not electable as current")
)

// Scheduler wraps a Store with session state. Safe for concurrent use.
type Scheduler struct {
	mu      sync.RWMutex
	st      *store.Store
	session *models.Session

	debugLog func(format string, args ...interface{})
	now      func() time.Time
}

// New creates a Scheduler over st. No session is active until StartSession
// or RestoreSession is called.
func New(st *store.Store) *Scheduler {
	return &Scheduler{
		st:       st,
		debugLog: func(format string, args ...interface{}) {},
		now:      time.Now,
	}
}

// SetDebugLog installs a logging hook.
func (s *Scheduler) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// SetClock overrides the time source; intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// newSessionID generates a "<unix_ts>-<4hex>" session identifier.
func newSessionID(now time.Time) (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session suffix: %w", err)
	}
	return fmt.Sprintf("%d-%s", now.Unix(), hex.EncodeToString(buf)), nil
}

// StartSession begins a fresh session: new session_id, no current task.
func (s *Scheduler) StartSession() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id, err := newSessionID(now)
	if err != nil {
		return nil, err
	}
	s.session = &models.Session{ID: id, StartedAt: now}
	s.debugLog("[scheduler.StartSession] new session %s", id)
	return s.cloneSession(), nil
}

// RestoreSession adopts persisted session state, e.g. after cold start
// via SESSION_STATE.md parsing (spec.md §4.3).
func (s *Scheduler) RestoreSession(id, currentTaskID string, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &models.Session{ID: id, CurrentTaskID: currentTaskID, StartedAt: startedAt}
	s.debugLog("[scheduler.RestoreSession] restored %s current=%q", id, currentTaskID)
}

// SetCurrentTask elects id as the current task. Rejects tasks that are
// missing, molecules, or not in {pending, in_progress}. If pending, the
// task is atomically flipped to in_progress.
func (s *Scheduler) SetCurrentTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNoActiveSession
	}

	task, err := s.st.GetTask(id)
	if err != nil {
		return err
	}
	if task.TaskType == models.TaskTypeMolecule {
		return fmt.Errorf("%w: %s is a molecule", ErrTaskNotElectable, id)
	}
	if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("%w: %s has status %s", ErrTaskNotElectable, id, task.Status)
	}

	if task.Status == models.TaskStatusPending {
		if err := s.st.UpdateStatus(id, models.TaskStatusInProgress); err != nil {
			return err
		}
	}

	s.session.CurrentTaskID = id
	s.debugLog("[scheduler.SetCurrentTask] elected %s", id)
	return nil
}

// GetCurrentTask is a pure query returning the current task if it is
// still valid (workable, not a molecule), otherwise nil.
func (s *Scheduler) GetCurrentTask() *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil || s.session.CurrentTaskID == "" {
		return nil
	}
	task, err := s.st.GetTask(s.session.CurrentTaskID)
	if err != nil {
		return nil
	}
	if !isWorkable(task) {
		return nil
	}
	return task
}

func isWorkable(task *models.Task) bool {
	if task.TaskType == models.TaskTypeMolecule {
		return false
	}
	return task.Status == models.TaskStatusPending || task.Status == models.TaskStatusInProgress
}

// ValidateCurrentTask clears current_task_id if the underlying task has
// become invalid (completed, cancelled, turned into a molecule, or
// deleted).
func (s *Scheduler) ValidateCurrentTask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.CurrentTaskID == "" {
		return
	}
	task, err := s.st.GetTask(s.session.CurrentTaskID)
	if err != nil || !isWorkable(task) {
		s.debugLog("[scheduler.ValidateCurrentTask] clearing stale current task %s", s.session.CurrentTaskID)
		s.session.CurrentTaskID = ""
	}
}

// AdoptOrphanedTask promotes the first in_progress, non-molecule task
// found to current, if no current task is set. Used on recovery after an
// unclean restart left a task in_progress with no session pointing at it.
func (s *Scheduler) AdoptOrphanedTask() (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNoActiveSession
	}
	if s.session.CurrentTaskID != "" {
		return nil, nil
	}

	inProgress := s.st.ListTasks(store.ListFilter{Status: models.TaskStatusInProgress})
	for _, task := range inProgress {
		if task.TaskType == models.TaskTypeMolecule {
			continue
		}
		s.session.CurrentTaskID = task.ID
		s.debugLog("[scheduler.AdoptOrphanedTask] adopted orphaned task %s", task.ID)
		return task, nil
	}
	return nil, nil
}

// WouldCreateCycle reports whether adding a "blocks" edge from src to dst
// would introduce a cycle, without mutating the store. Used by the
// orchestrator to validate a proposed dependency before calling
// Store.AddDependency.
func (s *Scheduler) WouldCreateCycle(src, dst string) (bool, error) {
	if _, err := s.st.GetTask(src); err != nil {
		return false, err
	}
	if _, err := s.st.GetTask(dst); err != nil {
		return false, err
	}
	// Probe by attempting the add; on cycle rejection report true without
	// having mutated anything, otherwise undo the successful probe.
	err := s.st.AddDependency(src, dst, models.DependencyBlocks)
	if err != nil {
		if errors.Is(err, store.ErrCircularDependency) {
			return true, nil
		}
		if errors.Is(err, store.ErrDuplicateEdge) {
			return false, nil
		}
		return false, err
	}
	if err := s.st.RemoveDependency(src, dst, models.DependencyBlocks); err != nil {
		s.debugLog("[scheduler.WouldCreateCycle] failed to undo probe edge %s->%s: %v", src, dst, err)
	}
	return false, nil
}

// ElectionOrder returns the ready tasks sorted by (priority asc,
// created_at asc), the order the orchestrator uses to decide which ready
// task to elect next (spec.md §4.2). Never used implicitly by
// GetCurrentTask.
func (s *Scheduler) ElectionOrder() []*models.Task {
	ready := s.st.GetReadyTasks()
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready
}

// CurrentSession returns a copy of the active session, or nil if none.
func (s *Scheduler) CurrentSession() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneSession()
}

func (s *Scheduler) cloneSession() *models.Session {
	if s.session == nil {
		return nil
	}
	clone := *s.session
	return &clone
}
