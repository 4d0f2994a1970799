package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ChatRequest mirrors spec.md §6's local-model `chat_stream` contract
// (model, messages, enable_thinking, format?, tools?, keep_alive?,
// num_ctx, num_predict, temperature?, repeat_penalty?).
type ChatRequest struct {
	Model          string
	Messages       []Message
	EnableThinking bool
	Format         string
	Tools          []ToolDefinition
	KeepAlive      string
	NumCtx         int
	NumPredict     int
	Temperature    *float64
	RepeatPenalty  *float64
}

// ChunkCallback receives each streaming delta. thinking/content are
// empty strings when not present on that delta, matching spec.md §6's
// `on_chunk(ctx, thinking?, content?, tool_calls?)`.
type ChunkCallback func(thinking, content string, toolCalls []ToolCall)

// ChatClient is the LLM provider contract the executor drives. The
// default implementation is LocalClient; internal/agent/remote.go
// provides a hosted-model adapter satisfying the same interface. Which of
// the two an executor gets is fixed when it is constructed (cmd/loomd
// picks one from configuration); Capabilities.ModelOverride does not
// switch clients.
type ChatClient interface {
	ChatStream(ctx context.Context, req ChatRequest, onChunk ChunkCallback) (Stats, error)
}

// wireMessage is the NDJSON wire shape for one chat turn.
type wireMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ToolCalls []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string          `json:"id"`
	Function wireToolCallFn  `json:"function"`
}

type wireToolCallFn struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireRequest struct {
	Model     string       `json:"model"`
	Messages  []wireMessage `json:"messages"`
	Think     bool         `json:"think,omitempty"`
	Format    string       `json:"format,omitempty"`
	Tools     []wireTool   `json:"tools,omitempty"`
	KeepAlive string       `json:"keep_alive,omitempty"`
	Stream    bool         `json:"stream"`
	Options   wireOptions  `json:"options"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireOptions struct {
	NumCtx        int      `json:"num_ctx,omitempty"`
	NumPredict    int      `json:"num_predict,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
}

// wireChunk is one NDJSON line the server emits during streaming.
type wireChunk struct {
	Message        wireMessage `json:"message"`
	Done           bool        `json:"done"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount      int         `json:"eval_count"`
}

// LocalClient talks to a local model server's streaming chat endpoint
// over NDJSON, grounded on the teacher's `ParseAPIStream`
// (bufio.Scanner line-by-line NDJSON decode) pointed at a local-model
// wire format instead of the Anthropic SSE one.
type LocalClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewLocalClient creates a LocalClient against baseURL (e.g.
// "http://localhost:11434").
func NewLocalClient(baseURL string) *LocalClient {
	return &LocalClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 0}, // streaming: no overall deadline here, ctx governs it
	}
}

var _ ChatClient = (*LocalClient)(nil)

// ChatStream posts req to the server's /api/chat endpoint and feeds each
// NDJSON line to onChunk as it arrives.
func (c *LocalClient) ChatStream(ctx context.Context, req ChatRequest, onChunk ChunkCallback) (Stats, error) {
	wire := toWireRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return Stats{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Stats{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return Stats{}, fmt.Errorf("chat stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("chat stream: unexpected status %s", resp.Status)
	}

	var stats Stats
	scanner := bufio.NewScanner(resp.Body)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk wireChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // malformed line; skip rather than abort the stream
		}

		if chunk.Message.Content != "" || chunk.Message.Thinking != "" || len(chunk.Message.ToolCalls) > 0 {
			onChunk(chunk.Message.Thinking, chunk.Message.Content, fromWireToolCalls(chunk.Message.ToolCalls))
		}

		if chunk.Done {
			stats.InputTokens = int64(chunk.PromptEvalCount)
			stats.OutputTokens = int64(chunk.EvalCount)
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read chat stream: %w", err)
	}
	return stats, nil
}

func toWireRequest(req ChatRequest) wireRequest {
	wire := wireRequest{
		Model:     req.Model,
		Think:     req.EnableThinking,
		Format:    req.Format,
		KeepAlive: req.KeepAlive,
		Stream:    true,
		Options: wireOptions{
			NumCtx:        req.NumCtx,
			NumPredict:    req.NumPredict,
			Temperature:   req.Temperature,
			RepeatPenalty: req.RepeatPenalty,
		},
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return wire
}

func toWireMessage(m Message) wireMessage {
	wm := wireMessage{Role: string(m.Role), Content: m.Content}
	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID: tc.ID,
			Function: wireToolCallFn{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return wm
}

func fromWireToolCalls(wire []wireToolCall) []ToolCall {
	if len(wire) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(wire))
	for _, tc := range wire {
		out = append(out, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
