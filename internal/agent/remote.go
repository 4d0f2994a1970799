package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// RemoteClientConfig configures RemoteClient, grounded on the teacher's
// internal/api.ClientConfig (direct API key vs. Bedrock paths).
type RemoteClientConfig struct {
	Model         string
	APIKey        string
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// RemoteClient satisfies ChatClient against a hosted Anthropic model,
// used instead of the local NDJSON server when cmd/loomd's configuration
// sets an API key or enables Bedrock (spec.md §4.5). Grounded on the teacher's
// internal/api/client.go, trimmed to the ChatClient surface the executor
// needs and with token tracking delegated to the caller via Stats
// instead of a package-level TokenTracker.
type RemoteClient struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewRemoteClient builds a RemoteClient per cfg.
func NewRemoteClient(cfg RemoteClientConfig) (*RemoteClient, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}

	return &RemoteClient{
		inner: anthropic.NewClient(opts...),
		model: model,
	}, nil
}

var _ ChatClient = (*RemoteClient)(nil)

// ChatStream sends req as a streamed message create call and feeds text
// deltas to onChunk. Tool-call deltas arrive as input_json_delta events
// and are accumulated per content-block index before being surfaced as
// a single ToolCall once the block closes.
func (c *RemoteClient) ChatStream(ctx context.Context, req ChatRequest, onChunk ChunkCallback) (Stats, error) {
	model := c.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(nonZero(req.NumPredict, 4096)),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toInputSchema(t.Parameters),
			},
		})
	}

	stream := c.inner.Messages.NewStreaming(ctx, params)

	toolBuffers := make(map[int64]*ToolInputAccumulator)
	var stats Stats

	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if e.ContentBlock.Type == "tool_use" {
				toolBuffers[e.Index] = &ToolInputAccumulator{ID: e.ContentBlock.ID, Name: e.ContentBlock.Name}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch e.Delta.Type {
			case "text_delta":
				if e.Delta.Text != "" {
					onChunk("", e.Delta.Text, nil)
				}
			case "thinking_delta":
				if e.Delta.Thinking != "" {
					onChunk(e.Delta.Thinking, "", nil)
				}
			case "input_json_delta":
				if buf, ok := toolBuffers[e.Index]; ok {
					buf.Append(e.Delta.PartialJSON)
				}
			}
		case anthropic.ContentBlockStopEvent:
			if buf, ok := toolBuffers[e.Index]; ok {
				onChunk("", "", []ToolCall{buf.ToolCall()})
				delete(toolBuffers, e.Index)
			}
		case anthropic.MessageDeltaEvent:
			stats.OutputTokens += e.Usage.OutputTokens
		case anthropic.MessageStartEvent:
			stats.InputTokens += e.Message.Usage.InputTokens
		}
	}
	if err := stream.Err(); err != nil {
		return stats, fmt.Errorf("remote chat stream: %w", err)
	}
	return stats, nil
}

// ToolInputAccumulator buffers streamed partial JSON for one tool_use
// content block until ContentBlockStopEvent closes it.
type ToolInputAccumulator struct {
	ID   string
	Name string
	buf  []byte
}

func (a *ToolInputAccumulator) Append(partialJSON string) {
	a.buf = append(a.buf, partialJSON...)
}

func (a *ToolInputAccumulator) ToolCall() ToolCall {
	return ToolCall{ID: a.ID, Name: a.Name, Arguments: append([]byte(nil), a.buf...)}
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue // pulled out separately into params.System by systemPrompt
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: m.Content}}},
		})
	}
	return out
}

// systemPrompt extracts the (single, leading) system message's content, if
// any, so it can be attached to params.System instead of sent as a turn.
func systemPrompt(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// toolSchema is the subset of a JSON Schema object ToolDefinition.Parameters
// carries: a flat "object" schema with properties and required fields, the
// same shape the executor's ToolRegistry emits.
type toolSchema struct {
	Properties map[string]interface{} `json:"properties"`
	Required   []string                `json:"required"`
}

func toInputSchema(parameters json.RawMessage) anthropic.ToolInputSchemaParam {
	if len(parameters) == 0 {
		return anthropic.ToolInputSchemaParam{}
	}
	var s toolSchema
	if err := json.Unmarshal(parameters, &s); err != nil {
		return anthropic.ToolInputSchemaParam{}
	}
	return anthropic.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required}
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
