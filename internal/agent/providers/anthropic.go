// Package providers adapts concrete LLM wire formats to the
// agent.LLMProvider seam. Each adapter converts the request, streams the
// response, and classifies transport errors; everything else about the
// provider protocols stays out of the orchestrator.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cratos-run/cratos/internal/agent"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Anthropic streams completions through the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic validates cfg and constructs the client.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: model}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

// Complete converts req, opens an SSE stream, and forwards fragments as
// agent chunks. Tool calls accumulate across input_json deltas and are
// delivered together with usage on the terminal chunk.
func (p *Anthropic) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Messages.NewStreaming(ctx, params)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var calls []agent.PlannedCall
		var pendingCall *agent.PlannedCall
		var pendingInput strings.Builder
		var inputTokens, outputTokens int

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				inputTokens = int(start.Message.Usage.InputTokens)
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					use := block.AsToolUse()
					pendingCall = &agent.PlannedCall{ID: use.ID, Name: use.Name}
					pendingInput.Reset()
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						chunks <- &agent.CompletionChunk{Text: delta.Text}
					}
				case "input_json_delta":
					pendingInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if pendingCall != nil {
					args := pendingInput.String()
					if args == "" {
						args = "{}"
					}
					pendingCall.Arguments = json.RawMessage(args)
					calls = append(calls, *pendingCall)
					pendingCall = nil
				}
			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					outputTokens = int(delta.Usage.OutputTokens)
				}
			case "message_stop":
				chunks <- &agent.CompletionChunk{
					Done:         true,
					ToolCalls:    calls,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- &agent.CompletionChunk{Error: Classify("anthropic", err)}
		}
	}()
	return chunks, nil
}

func (p *Anthropic) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(call.Arguments, &input); err != nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(content...))
		case "tool":
			params.Messages = append(params.Messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	for _, tool := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return params, fmt.Errorf("anthropic: invalid schema for tool %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		params.Tools = append(params.Tools, param)
	}
	return params, nil
}
