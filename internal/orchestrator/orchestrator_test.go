package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/loomharness/loom/internal/agent"
	"github.com/loomharness/loom/internal/registry"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/internal/tools"
)

// turn is one scripted ChatStream response: either a content string with
// no tool calls (the conversation ends) or one or more tool calls.
type turn struct {
	toolCalls []agent.ToolCall
	content   string
}

// scriptedClient replays turns in order, one per ChatStream call; once
// exhausted it answers "done" with no tool calls so the executor's loop
// always terminates instead of hanging.
type scriptedClient struct {
	mu    sync.Mutex
	turns []turn
	idx   int
}

func (c *scriptedClient) ChatStream(ctx context.Context, req agent.ChatRequest, onChunk agent.ChunkCallback) (agent.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.turns) {
		onChunk("", "done", nil)
		return agent.Stats{}, nil
	}
	t := c.turns[c.idx]
	c.idx++
	onChunk("", t.content, t.toolCalls)
	return agent.Stats{}, nil
}

func call(name string, args map[string]string) agent.ToolCall {
	b, _ := json.Marshal(args)
	return agent.ToolCall{ID: name, Name: name, Arguments: json.RawMessage(b)}
}

func writeDef(t *testing.T, dir, name string) {
	t.Helper()
	content := "---\nname: " + name + "\ndescription: test " + name + "\nmax_iterations: 5\n---\nYou are the " + name + ".\n"
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// TestOrchestrator_QuestionerKickback_PlannerResolves_BackToQuestioner
// replays spec.md's Questioner-kickback narrative end to end: a single
// pending task is too broad, the Questioner blocks it, the orchestrator
// kicks back to the Planner with the blocked reason, and the Planner
// promotes it to a molecule before handing back to the Questioner.
func TestOrchestrator_QuestionerKickback_PlannerResolves_BackToQuestioner(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"planner", "questioner", "tinkerer", "judge"} {
		writeDef(t, dir, name)
	}
	reg, err := registry.New(context.Background(), dir)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	s := store.New()
	sched := scheduler.New(s)
	if _, err := sched.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	taskID, err := s.CreateTask(store.CreateTaskParams{Title: "Refactor auth"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	clients := map[CommandType]*scriptedClient{
		StartQuestioner: {turns: []turn{{
			toolCalls: []agent.ToolCall{
				call("add_comment", map[string]string{"task_id": taskID, "content": "BLOCKED: too broad"}),
				call("update_status", map[string]string{"task_id": taskID, "status": "blocked"}),
			},
		}}},
		StartPlanner: {turns: []turn{{
			toolCalls: []agent.ToolCall{
				call("update_task_type", map[string]string{"task_id": taskID, "task_type": "molecule"}),
			},
		}}},
	}

	toolsReg := tools.New(s, sched)
	newExec := func(role CommandType, def registry.Definition) *agent.Executor {
		client, ok := clients[role]
		if !ok {
			client = &scriptedClient{}
		}
		return agent.NewExecutor(client, toolsReg, string(role))
	}

	orch := New(s, sched, reg, newExec)
	orch.Enqueue(Command{Type: StartQuestioner, Display: "Questioner"})

	ctx := context.Background()
	if err := orch.Tick(ctx); err != nil {
		t.Fatalf("Tick (questioner): %v", err)
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != "blocked" {
		t.Fatalf("task.Status = %q, want blocked", task.Status)
	}

	queued := orch.pendingQueue()
	if len(queued) != 1 || queued[0].Type != StartPlanner {
		t.Fatalf("queue = %+v, want one StartPlanner kickback command", queued)
	}
	if !strings.Contains(queued[0].Prompt, "too broad") {
		t.Errorf("kickback prompt = %q, want it to mention the blocked reason", queued[0].Prompt)
	}

	if err := orch.Tick(ctx); err != nil {
		t.Fatalf("Tick (planner): %v", err)
	}

	task, err = s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.TaskType != "molecule" {
		t.Errorf("task.TaskType = %q, want molecule", task.TaskType)
	}

	queued = orch.pendingQueue()
	if len(queued) != 1 || queued[0].Type != StartQuestioner {
		t.Fatalf("queue = %+v, want one StartQuestioner command", queued)
	}
}

func TestOrchestrator_Tick_NoopWhenQueueEmpty(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "planner")
	reg, err := registry.New(context.Background(), dir)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	s := store.New()
	sched := scheduler.New(s)
	sched.StartSession()
	orch := New(s, sched, reg, func(role CommandType, def registry.Definition) *agent.Executor {
		return agent.NewExecutor(&scriptedClient{}, tools.New(s, sched), string(role))
	})

	if err := orch.Tick(context.Background()); err != nil {
		t.Fatalf("Tick on empty queue: %v", err)
	}
	if len(orch.pendingQueue()) != 0 {
		t.Error("expected queue to remain empty")
	}
}

func TestOrchestrator_Dispatch_UnknownAgentIsError(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.New(context.Background(), dir)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	s := store.New()
	sched := scheduler.New(s)
	sched.StartSession()
	orch := New(s, sched, reg, func(role CommandType, def registry.Definition) *agent.Executor {
		return agent.NewExecutor(&scriptedClient{}, tools.New(s, sched), string(role))
	})
	orch.Enqueue(Command{Type: StartPlanner, Display: "Planner"})

	if err := orch.Tick(context.Background()); err == nil {
		t.Fatal("expected an error dispatching an agent with no registered definition")
	}
}

// pendingQueue is a test-only accessor into the unexported FIFO queue.
func (o *Orchestrator) pendingQueue() []Command {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Command(nil), o.queue...)
}
