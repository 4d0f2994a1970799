package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loomharness/loom/internal/agent"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/store"
)

func TestRegistry_CreateTask(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	args, _ := json.Marshal(map[string]string{"title": "fix bug", "description": "it crashes"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "create_task", Arguments: args}, "tinkerer")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	tasks := s.ListTasks(store.ListFilter{})
	if len(tasks) != 1 || tasks[0].Title != "fix bug" {
		t.Errorf("tasks = %+v, want one task titled 'fix bug'", tasks)
	}
}

func TestRegistry_CreateTask_MissingTitleIsStoreError(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	args, _ := json.Marshal(map[string]string{})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "create_task", Arguments: args}, "tinkerer")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for missing title")
	}
	if result.ErrorKind != "store_error" {
		t.Errorf("ErrorKind = %q, want store_error", result.ErrorKind)
	}
}

func TestRegistry_CompleteTask_UnblocksDependent(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	blockerID, err := s.CreateTask(store.CreateTaskParams{Title: "blocker"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	blockedID, err := s.CreateTask(store.CreateTaskParams{Title: "blocked", BlockedByEdges: []string{blockerID}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	args, _ := json.Marshal(map[string]string{"task_id": blockerID})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "complete_task", Arguments: args}, "tinkerer")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}
	if !strings.Contains(result.Data, blockedID) {
		t.Errorf("Data = %q, want it to mention unblocked task %s", result.Data, blockedID)
	}
}

func TestRegistry_CompleteTask_UnknownTaskIsStoreError(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	args, _ := json.Marshal(map[string]string{"task_id": "does-not-exist"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "complete_task", Arguments: args}, "tinkerer")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for unknown task")
	}
}

func TestRegistry_AddComment(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	taskID, err := s.CreateTask(store.CreateTaskParams{Title: "task"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	args, _ := json.Marshal(map[string]string{"task_id": taskID, "content": "BLOCKED: need more info"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "add_comment", Arguments: args}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	matches := s.GetTasksWithCommentPrefix("BLOCKED:")
	if len(matches) != 1 {
		t.Errorf("GetTasksWithCommentPrefix = %d matches, want 1", len(matches))
	}
}

func TestRegistry_UpdateStatus(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	taskID, err := s.CreateTask(store.CreateTaskParams{Title: "task"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	args, _ := json.Marshal(map[string]string{"task_id": taskID, "status": "blocked"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "update_status", Arguments: args}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != "blocked" {
		t.Errorf("Status = %q, want blocked", task.Status)
	}
}

func TestRegistry_UpdateTaskType_PromoteToMolecule(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	taskID, err := s.CreateTask(store.CreateTaskParams{Title: "epic"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	args, _ := json.Marshal(map[string]string{"task_id": taskID, "task_type": "molecule"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "update_task_type", Arguments: args}, "planner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}
}

func TestRegistry_AddDependency(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	srcID, _ := s.CreateTask(store.CreateTaskParams{Title: "src"})
	dstID, _ := s.CreateTask(store.CreateTaskParams{Title: "dst"})

	args, _ := json.Marshal(map[string]string{"src": srcID, "dst": dstID, "type": "blocks"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "add_dependency", Arguments: args}, "planner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	dst, err := s.GetTask(dstID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if dst.Status != "blocked" {
		t.Errorf("dst.Status = %q, want blocked", dst.Status)
	}
}

func TestRegistry_SetAndGetCurrentTask(t *testing.T) {
	s := store.New()
	sched := scheduler.New(s)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	reg := New(s, sched)

	taskID, _ := s.CreateTask(store.CreateTaskParams{Title: "task"})

	args, _ := json.Marshal(map[string]string{"task_id": taskID})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "set_current_task", Arguments: args}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	getResult, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "get_current_task"}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !strings.Contains(getResult.Data, taskID) {
		t.Errorf("Data = %q, want it to mention %s", getResult.Data, taskID)
	}
}

func TestRegistry_SetCurrentTask_NoSchedulerIsUnavailable(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	args, _ := json.Marshal(map[string]string{"task_id": "whatever"})
	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "set_current_task", Arguments: args}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure with no scheduler configured")
	}
	if result.ErrorKind != "unavailable" {
		t.Errorf("ErrorKind = %q, want unavailable", result.ErrorKind)
	}
}

func TestRegistry_GetReadyTasks(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	s.CreateTask(store.CreateTaskParams{Title: "ready one"})

	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "get_ready_tasks"}, "questioner")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if !strings.Contains(result.Data, "ready one") {
		t.Errorf("Data = %q, want it to mention 'ready one'", result.Data)
	}
}

func TestRegistry_UnknownToolName(t *testing.T) {
	s := store.New()
	reg := New(s, nil)

	result, err := reg.ExecuteToolCall(context.Background(), agent.ToolCall{Name: "delete_everything"}, "tinkerer")
	if err != nil {
		t.Fatalf("ExecuteToolCall: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.ErrorKind != "unknown_tool" {
		t.Errorf("ErrorKind = %q, want unknown_tool", result.ErrorKind)
	}
}

func TestRegistry_Definitions_NamesMatchBuiltinTools(t *testing.T) {
	reg := New(store.New(), nil)
	defs := reg.Definitions()
	want := map[string]bool{
		"create_task": true, "complete_task": true, "add_comment": true,
		"update_status": true, "update_task_type": true, "add_dependency": true,
		"set_current_task": true, "get_current_task": true, "get_ready_tasks": true,
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for _, d := range defs {
		if !want[d.Name] {
			t.Errorf("unexpected tool definition %q", d.Name)
		}
		if len(d.Parameters) == 0 {
			t.Errorf("tool %q has empty Parameters schema", d.Name)
		}
	}
}
