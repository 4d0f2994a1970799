package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	st := store.New()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	sched := New(st)
	sched.SetClock(func() time.Time { return tick })
	return sched, st
}

func TestStartSession_GeneratesID(t *testing.T) {
	sched, _ := newTestScheduler(t)
	session, err := sched.StartSession()
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if session.ID == "" {
		t.Fatal("session ID is empty")
	}
	if session.CurrentTaskID != "" {
		t.Errorf("CurrentTaskID = %q, want empty", session.CurrentTaskID)
	}
}

func TestSetCurrentTask_FlipsFromPendingToInProgress(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	id, err := st.CreateTask(store.CreateTaskParams{Title: "t", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := sched.SetCurrentTask(id); err != nil {
		t.Fatalf("SetCurrentTask: %v", err)
	}

	task, err := st.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("Status = %v, want in_progress", task.Status)
	}
}

func TestSetCurrentTask_RejectsMolecule(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	id, err := st.CreateTask(store.CreateTaskParams{Title: "epic", TaskType: models.TaskTypeMolecule})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := sched.SetCurrentTask(id); !errors.Is(err, ErrTaskNotElectable) {
		t.Errorf("error = %v, want ErrTaskNotElectable", err)
	}
}

func TestSetCurrentTask_RejectsCompleted(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	id, err := st.CreateTask(store.CreateTaskParams{Title: "t", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := st.CompleteTask(id); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := sched.SetCurrentTask(id); !errors.Is(err, ErrTaskNotElectable) {
		t.Errorf("error = %v, want ErrTaskNotElectable", err)
	}
}

func TestValidateCurrentTask_ClearsWhenCompleted(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	id, err := st.CreateTask(store.CreateTaskParams{Title: "t", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := sched.SetCurrentTask(id); err != nil {
		t.Fatalf("SetCurrentTask: %v", err)
	}
	if _, err := st.CompleteTask(id); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	sched.ValidateCurrentTask()

	if got := sched.GetCurrentTask(); got != nil {
		t.Errorf("GetCurrentTask() = %v, want nil", got)
	}
	if session := sched.CurrentSession(); session.CurrentTaskID != "" {
		t.Errorf("CurrentTaskID = %q, want empty", session.CurrentTaskID)
	}
}

func TestAdoptOrphanedTask(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	id, err := st.CreateTask(store.CreateTaskParams{Title: "t", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.UpdateStatus(id, models.TaskStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	adopted, err := sched.AdoptOrphanedTask()
	if err != nil {
		t.Fatalf("AdoptOrphanedTask: %v", err)
	}
	if adopted == nil || adopted.ID != id {
		t.Fatalf("adopted = %v, want %s", adopted, id)
	}

	current := sched.GetCurrentTask()
	if current == nil || current.ID != id {
		t.Fatalf("GetCurrentTask() = %v, want %s", current, id)
	}
}

func TestAdoptOrphanedTask_NoopWhenCurrentSet(t *testing.T) {
	sched, st := newTestScheduler(t)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	id, err := st.CreateTask(store.CreateTaskParams{Title: "t", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := sched.SetCurrentTask(id); err != nil {
		t.Fatalf("SetCurrentTask: %v", err)
	}

	other, err := st.CreateTask(store.CreateTaskParams{Title: "other", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.UpdateStatus(other, models.TaskStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	adopted, err := sched.AdoptOrphanedTask()
	if err != nil {
		t.Fatalf("AdoptOrphanedTask: %v", err)
	}
	if adopted != nil {
		t.Errorf("adopted = %v, want nil since current task already set", adopted)
	}
}

func TestWouldCreateCycle(t *testing.T) {
	sched, st := newTestScheduler(t)
	a, err := st.CreateTask(store.CreateTaskParams{Title: "a", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	b, err := st.CreateTask(store.CreateTaskParams{Title: "b", TaskType: models.TaskTypeTask})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.AddDependency(a, b, models.DependencyBlocks); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	would, err := sched.WouldCreateCycle(b, a)
	if err != nil {
		t.Fatalf("WouldCreateCycle: %v", err)
	}
	if !would {
		t.Error("WouldCreateCycle(b, a) = false, want true")
	}

	// The probe must not have left a dangling edge behind.
	blockedBy := st.GetBlockedBy(a)
	if len(blockedBy) != 0 {
		t.Errorf("GetBlockedBy(a) = %v, want empty after a rejected probe", blockedBy)
	}
}

func TestElectionOrder_PriorityThenCreatedAt(t *testing.T) {
	sched, st := newTestScheduler(t)
	low, err := st.CreateTask(store.CreateTaskParams{Title: "low", TaskType: models.TaskTypeTask, Priority: models.PriorityLow})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	critical, err := st.CreateTask(store.CreateTaskParams{Title: "critical", TaskType: models.TaskTypeTask, Priority: models.PriorityCritical})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	order := sched.ElectionOrder()
	if len(order) != 2 || order[0].ID != critical || order[1].ID != low {
		t.Fatalf("ElectionOrder = %v, want [%s, %s]", order, critical, low)
	}
}
