// Package tools provides internal/agent.ToolRegistry implementations that
// drive the task store and scheduler (spec.md §6). These are the tools
// the Planner/Questioner/Tinkerer/Judge sub-agents call to mutate the
// task graph; anything beyond task-graph mutation (filesystem, shell,
// git) is an external collaborator's responsibility, not part of this
// package.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/loomharness/loom/internal/agent"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/pkg/models"
)

// Registry is an in-memory agent.ToolRegistry backed directly by a
// *store.Store and *scheduler.Scheduler, implementing the store/scheduler
// mutating tools an agent needs to drive task state. Grounded on the
// teacher's internal/api.ToolExecutor (Execute's switch-on-name dispatch,
// one exec<Name> method per tool, "invalid parameters" / "unknown tool"
// error strings returned as tool content rather than a Go error) with the
// filesystem tool set replaced by the task-graph mutations this domain
// actually needs.
type Registry struct {
	store *store.Store
	sched *scheduler.Scheduler
}

// New creates a Registry over s and sched. sched may be nil, in which
// case set_current_task and get_current_task report unavailable rather
// than panicking (useful for tests exercising only store-level tools).
func New(s *store.Store, sched *scheduler.Scheduler) *Registry {
	return &Registry{store: s, sched: sched}
}

var _ agent.ToolRegistry = (*Registry)(nil)

// Definitions returns the JSON-schema tool definitions the executor
// passes through to the chat endpoint's `tools` parameter.
func (r *Registry) Definitions() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{
			Name:        "create_task",
			Description: "Create a new task in the dependency graph.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"title":       map[string]interface{}{"type": "string", "description": "Short task title"},
					"description": map[string]interface{}{"type": "string", "description": "Longer task description"},
					"task_type":   map[string]interface{}{"type": "string", "description": "task, bug, feature, research, wisp, or molecule"},
					"parent_id":   map[string]interface{}{"type": "string", "description": "Parent molecule ID, if any"},
				},
				"required": []string{"title"},
			}),
		},
		{
			Name:        "complete_task",
			Description: "Mark a task completed and unblock its dependents.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id": map[string]interface{}{"type": "string", "description": "ID of the task to complete"},
				},
				"required": []string{"task_id"},
			}),
		},
		{
			Name:        "add_comment",
			Description: "Append a comment to a task, e.g. a BLOCKED:/REJECTED:/APPROVED: routing signal.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id": map[string]interface{}{"type": "string", "description": "ID of the task to comment on"},
					"content": map[string]interface{}{"type": "string", "description": "Comment text"},
				},
				"required": []string{"task_id", "content"},
			}),
		},
		{
			Name:        "update_status",
			Description: "Directly transition a task's status, e.g. marking it blocked without a dependency edge.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id": map[string]interface{}{"type": "string", "description": "ID of the task to update"},
					"status":  map[string]interface{}{"type": "string", "description": "pending, in_progress, completed, blocked, or cancelled"},
				},
				"required": []string{"task_id", "status"},
			}),
		},
		{
			Name:        "update_task_type",
			Description: "Change a task's type, e.g. promoting it to a molecule when splitting it into children.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id":   map[string]interface{}{"type": "string", "description": "ID of the task to update"},
					"task_type": map[string]interface{}{"type": "string", "description": "task, bug, feature, research, or molecule"},
				},
				"required": []string{"task_id", "task_type"},
			}),
		},
		{
			Name:        "add_dependency",
			Description: "Add a dependency edge between two tasks.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"src":  map[string]interface{}{"type": "string", "description": "Source task ID"},
					"dst":  map[string]interface{}{"type": "string", "description": "Destination task ID"},
					"type": map[string]interface{}{"type": "string", "description": "blocks, parent, related, or discovered"},
				},
				"required": []string{"src", "dst", "type"},
			}),
		},
		{
			Name:        "set_current_task",
			Description: "Elect a task as the one currently being worked.",
			Parameters: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id": map[string]interface{}{"type": "string", "description": "ID of the task to elect"},
				},
				"required": []string{"task_id"},
			}),
		},
		{
			Name:        "get_current_task",
			Description: "Return the task currently elected as in progress, if any.",
			Parameters: mustSchema(map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}),
		},
		{
			Name:        "get_ready_tasks",
			Description: "List tasks that are pending, unblocked, and not molecules, ordered by priority then creation time.",
			Parameters: mustSchema(map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}),
		},
	}
}

// ExecuteToolCall dispatches call to the matching exec<Name> method.
func (r *Registry) ExecuteToolCall(ctx context.Context, call agent.ToolCall, agentName string) (agent.ToolResult, error) {
	start := time.Now()
	var result agent.ToolResult

	switch call.Name {
	case "create_task":
		result = r.execCreateTask(call.Arguments)
	case "complete_task":
		result = r.execCompleteTask(call.Arguments)
	case "add_comment":
		result = r.execAddComment(call.Arguments, agentName)
	case "update_status":
		result = r.execUpdateStatus(call.Arguments)
	case "update_task_type":
		result = r.execUpdateTaskType(call.Arguments)
	case "add_dependency":
		result = r.execAddDependency(call.Arguments)
	case "set_current_task":
		result = r.execSetCurrentTask(call.Arguments)
	case "get_current_task":
		result = r.execGetCurrentTask()
	case "get_ready_tasks":
		result = r.execGetReadyTasks()
	default:
		result = agent.ToolResult{Success: false, Data: fmt.Sprintf("unknown tool: %s", call.Name), ErrorKind: "unknown_tool"}
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

type createTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TaskType    string `json:"task_type"`
	ParentID    string `json:"parent_id"`
}

func (r *Registry) execCreateTask(input json.RawMessage) agent.ToolResult {
	var params createTaskParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	taskType := models.TaskTypeTask
	if params.TaskType != "" {
		taskType = models.TaskType(params.TaskType)
	}

	id, err := r.store.CreateTask(store.CreateTaskParams{
		Title:       params.Title,
		Description: params.Description,
		TaskType:    taskType,
		ParentID:    params.ParentID,
	})
	if err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("create_task failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("created task %s", id)}
}

type completeTaskParams struct {
	TaskID string `json:"task_id"`
}

func (r *Registry) execCompleteTask(input json.RawMessage) agent.ToolResult {
	var params completeTaskParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	result, err := r.store.CompleteTask(params.TaskID)
	if err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("complete_task failed: %v", err), ErrorKind: "store_error"}
	}
	if len(result.Unblocked) == 0 {
		return agent.ToolResult{Success: true, Data: fmt.Sprintf("completed %s", result.ID)}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("completed %s, unblocked %v", result.ID, result.Unblocked)}
}

type addCommentParams struct {
	TaskID  string `json:"task_id"`
	Content string `json:"content"`
}

func (r *Registry) execAddComment(input json.RawMessage, agentName string) agent.ToolResult {
	var params addCommentParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	if err := r.store.AddComment(params.TaskID, agentName, params.Content); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("add_comment failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: "comment added"}
}

type updateStatusParams struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (r *Registry) execUpdateStatus(input json.RawMessage) agent.ToolResult {
	var params updateStatusParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	if err := r.store.UpdateStatus(params.TaskID, models.TaskStatus(params.Status)); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("update_status failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("%s is now %s", params.TaskID, params.Status)}
}

type updateTaskTypeParams struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
}

func (r *Registry) execUpdateTaskType(input json.RawMessage) agent.ToolResult {
	var params updateTaskTypeParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	if err := r.store.UpdateTaskType(params.TaskID, models.TaskType(params.TaskType)); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("update_task_type failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("%s is now %s", params.TaskID, params.TaskType)}
}

type addDependencyParams struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Type string `json:"type"`
}

func (r *Registry) execAddDependency(input json.RawMessage) agent.ToolResult {
	var params addDependencyParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	if err := r.store.AddDependency(params.Src, params.Dst, models.DependencyType(params.Type)); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("add_dependency failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("%s -[%s]-> %s", params.Src, params.Type, params.Dst)}
}

type setCurrentTaskParams struct {
	TaskID string `json:"task_id"`
}

func (r *Registry) execSetCurrentTask(input json.RawMessage) agent.ToolResult {
	if r.sched == nil {
		return agent.ToolResult{Success: false, Data: "no scheduler configured", ErrorKind: "unavailable"}
	}
	var params setCurrentTaskParams
	if err := json.Unmarshal(input, &params); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("invalid parameters: %v", err), ErrorKind: "invalid_arguments"}
	}

	if err := r.sched.SetCurrentTask(params.TaskID); err != nil {
		return agent.ToolResult{Success: false, Data: fmt.Sprintf("set_current_task failed: %v", err), ErrorKind: "store_error"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("current task is now %s", params.TaskID)}
}

func (r *Registry) execGetCurrentTask() agent.ToolResult {
	if r.sched == nil {
		return agent.ToolResult{Success: false, Data: "no scheduler configured", ErrorKind: "unavailable"}
	}
	task := r.sched.GetCurrentTask()
	if task == nil {
		return agent.ToolResult{Success: true, Data: "no current task"}
	}
	return agent.ToolResult{Success: true, Data: fmt.Sprintf("%s: %s (%s)", task.ID, task.Title, task.Status)}
}

func (r *Registry) execGetReadyTasks() agent.ToolResult {
	ready := r.store.GetReadyTasks()
	if len(ready) == 0 {
		return agent.ToolResult{Success: true, Data: "no ready tasks"}
	}
	lines := make([]string, len(ready))
	for i, t := range ready {
		lines[i] = fmt.Sprintf("%s: %s (priority %s)", t.ID, t.Title, t.Priority)
	}
	return agent.ToolResult{Success: true, Data: strings.Join(lines, "\n")}
}

func mustSchema(v map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // schema literals are constant; a marshal failure is a programming error
	}
	return b
}
