// Package agent implements the AgentExecutor (spec.md §4.5): a single
// LLM iteration loop with tool-call fan-out and conversation-mode
// resumption, streaming progress into an internal/streampipe.Pipeline.
package agent

import "encoding/json"

// Capabilities bounds what a single invocation of the executor is
// allowed to do: which tools the model may call, how many iterations it
// gets, and which model backend serves the request.
type Capabilities struct {
	AllowedTools     []string
	MaxIterations    int
	MaxToolDepth     int
	Temperature      float64
	ModelOverride    string
	Format           string
	ConversationMode bool
}

// Role identifies the speaker of a Message in conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation history fed back to the LLM
// on every iteration.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	// ToolCallID links a RoleTool message back to the ToolCall it answers.
	ToolCallID string
}

// ToolDefinition describes one tool the model may call, passed through
// to the chat endpoint's `tools` parameter verbatim.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a single invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Status reports how an invocation ended.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusNeedsInput   Status = "needs_input"
	StatusMaxIteration Status = "max_iterations"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Stats summarizes one invocation for logging and the orchestrator's
// budget bookkeeping.
type Stats struct {
	Iterations  int
	ToolCalls   int
	InputTokens int64
	OutputTokens int64
}

// Result is what Run/Resume return: spec.md §4.5's
// `{success, data, thinking, stats}` / `{status=max_iterations, ...}`
// shapes collapsed into one struct with a Status discriminator.
type Result struct {
	Status       Status
	Data         string
	Thinking     string
	Stats        Stats
	ErrorMessage string
}
