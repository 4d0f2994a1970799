package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomharness/loom/internal/streampipe"
)

// ErrAlreadyRunning is returned when Run/Resume is called while a prior
// invocation on the same Executor has not finished.
var ErrAlreadyRunning = errors.New("agent thread already running")

// ToolRegistry is the narrow tool-execution surface the executor drives
// (spec.md §6's `execute_tool_call`). Implementations decide permission,
// mutate the task store, and report an error kind the LLM can act on.
type ToolRegistry interface {
	ExecuteToolCall(ctx context.Context, call ToolCall, agentName string) (ToolResult, error)
	Definitions() []ToolDefinition
}

// ToolResult is what a tool call reports back to the conversation.
type ToolResult struct {
	Success        bool
	Data           string
	ErrorKind      string
	ExecutionTime  time.Duration
}

// Executor runs one agent invocation at a time, feeding streamed output
// into a streampipe.Pipeline and fanning out any tool calls the model
// requests through a ToolRegistry. Grounded on the teacher's
// executor.go wiring shape (stream → token tracking → result), replacing
// the worktree/subprocess plumbing with an in-process chat loop against
// ChatClient.
type Executor struct {
	client   ChatClient
	tools    ToolRegistry
	agentName string

	mu      sync.Mutex
	running bool
	history []Message
}

// NewExecutor creates an Executor bound to client and tools.
// agentName is passed to every ToolRegistry.ExecuteToolCall so tool
// side effects (e.g. comments) are attributed to the agent.
func NewExecutor(client ChatClient, tools ToolRegistry, agentName string) *Executor {
	return &Executor{client: client, tools: tools, agentName: agentName}
}

// GetMessageHistoryLen reports the current conversation length so the
// orchestrator can distinguish initial invocation from continuation
// under its own mutex (spec.md §4.5's thread-safety contract).
func (e *Executor) GetMessageHistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Run starts a fresh invocation: appends input as a user message and
// iterates until the model stops calling tools, the iteration cap is
// hit, or the agent is a conversation agent awaiting more input.
func (e *Executor) Run(ctx context.Context, caps Capabilities, systemPrompt, input string, pipe *streampipe.Pipeline) (Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	e.running = true
	e.history = []Message{{Role: RoleSystem, Content: systemPrompt}}
	e.mu.Unlock()

	return e.runLocked(ctx, caps, input, pipe)
}

// Resume continues a conversation-mode agent's existing history with a
// new user message, without resetting prior turns.
func (e *Executor) Resume(ctx context.Context, caps Capabilities, input string, pipe *streampipe.Pipeline) (Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	if len(e.history) == 0 {
		e.mu.Unlock()
		return Result{}, fmt.Errorf("resume called with no prior history")
	}
	e.running = true
	e.mu.Unlock()

	return e.runLocked(ctx, caps, input, pipe)
}

func (e *Executor) runLocked(ctx context.Context, caps Capabilities, input string, pipe *streampipe.Pipeline) (Result, error) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer pipe.Finish()

	e.mu.Lock()
	e.history = append(e.history, Message{Role: RoleUser, Content: input})
	e.mu.Unlock()

	maxIter := caps.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	var stats Stats
	var lastContent, lastThinking string

	for iter := 0; iter < maxIter; iter++ {
		stats.Iterations++

		if pipe.Cancelled() {
			return Result{Status: StatusCancelled, Stats: stats}, nil
		}

		toolCalls, content, thinking, turnStats, err := e.runTurn(ctx, caps, pipe)
		stats.InputTokens += turnStats.InputTokens
		stats.OutputTokens += turnStats.OutputTokens
		if err != nil {
			return Result{Status: StatusFailed, ErrorMessage: err.Error(), Stats: stats}, nil
		}
		lastContent, lastThinking = content, thinking

		if len(toolCalls) == 0 {
			e.mu.Lock()
			e.history = append(e.history, Message{Role: RoleAssistant, Content: content})
			e.mu.Unlock()

			if caps.ConversationMode {
				return Result{Status: StatusNeedsInput, Data: content, Thinking: thinking, Stats: stats}, nil
			}
			return Result{Status: StatusSuccess, Data: content, Thinking: thinking, Stats: stats}, nil
		}

		e.mu.Lock()
		e.history = append(e.history, Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls})
		e.mu.Unlock()

		for _, call := range toolCalls {
			if pipe.Cancelled() {
				return Result{Status: StatusCancelled, Stats: stats}, nil
			}
			e.dispatchTool(ctx, call, pipe)
			stats.ToolCalls++
		}
	}

	return Result{Status: StatusMaxIteration, Data: lastContent, Thinking: lastThinking, Stats: stats}, nil
}

// runTurn performs one LLM call with transport-failure retry: on the
// first failure it emits a synthetic "Connection failed..." content
// chunk, sleeps briefly, and retries once; a second failure is terminal
// for this turn (spec.md §4.6).
func (e *Executor) runTurn(ctx context.Context, caps Capabilities, pipe *streampipe.Pipeline) ([]ToolCall, string, string, Stats, error) {
	var toolCalls []ToolCall
	var content, thinking string

	onChunk := func(th, c string, tc []ToolCall) {
		if th != "" {
			thinking += th
			pipe.SendChunk(streampipe.Chunk{Thinking: th})
		}
		if c != "" {
			content += c
			pipe.SendChunk(streampipe.Chunk{Content: c})
		}
		if len(tc) > 0 {
			toolCalls = append(toolCalls, tc...)
		}
	}

	req := e.buildRequest(caps)
	stats, err := e.client.ChatStream(ctx, req, onChunk)
	if err == nil {
		return toolCalls, content, thinking, stats, nil
	}

	pipe.SendChunk(streampipe.Chunk{Content: fmt.Sprintf("Connection failed: %v. Retrying...", err)})
	time.Sleep(200 * time.Millisecond)

	toolCalls, content, thinking = nil, "", ""
	stats, err = e.client.ChatStream(ctx, req, onChunk)
	if err != nil {
		pipe.SendChunk(streampipe.Chunk{Content: fmt.Sprintf("Connection failed again: %v", err)})
		return nil, "", "", stats, err
	}
	return toolCalls, content, thinking, stats, nil
}

func (e *Executor) buildRequest(caps Capabilities) ChatRequest {
	e.mu.Lock()
	history := append([]Message(nil), e.history...)
	e.mu.Unlock()

	var tools []ToolDefinition
	if e.tools != nil {
		for _, def := range e.tools.Definitions() {
			if toolAllowed(caps.AllowedTools, def.Name) {
				tools = append(tools, def)
			}
		}
	}

	var temp *float64
	if caps.Temperature != 0 {
		t := caps.Temperature
		temp = &t
	}

	return ChatRequest{
		Model:          caps.ModelOverride,
		Messages:       history,
		EnableThinking: true,
		Format:         caps.Format,
		Tools:          tools,
		Temperature:    temp,
	}
}

func toolAllowed(allowed []string, name string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

// dispatchTool executes one tool call and appends its outcome to the
// conversation history as a tool-role message. A tool error is surfaced
// to the model as the message content, not treated as fatal to the loop.
func (e *Executor) dispatchTool(ctx context.Context, call ToolCall, pipe *streampipe.Pipeline) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	pipe.SendToolEvent(streampipe.ToolEvent{Kind: streampipe.ToolEventStart, Name: call.Name})

	start := time.Now()
	result, err := e.tools.ExecuteToolCall(ctx, call, e.agentName)
	elapsed := time.Since(start)

	content := result.Data
	if err != nil {
		content = err.Error()
	}

	pipe.SendToolEvent(streampipe.ToolEvent{
		Kind: streampipe.ToolEventComplete, Name: call.Name, Success: err == nil && result.Success,
		DurationMs: elapsed.Milliseconds(), Result: content, Size: len(content),
	})

	e.mu.Lock()
	e.history = append(e.history, Message{Role: RoleTool, Content: content, ToolCallID: call.ID})
	e.mu.Unlock()
}
