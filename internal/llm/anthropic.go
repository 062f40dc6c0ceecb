package llm

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client is the platform's sole LLM entry point, backed by the Anthropic
// Messages API. AgentRuntime's agent loop, InstanceDecider, and JobEngine's
// interpretation hook all go through this type rather than the SDK
// directly.
type Client struct {
	sdk         anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// Config carries the model identifier and defaults a Client is built with.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5-20250929"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Temperature == 0 {
		c.Temperature = 1.0
	}
}

// New builds a Client from an explicit API key, or from ANTHROPIC_API_KEY
// in the environment when cfg.APIKey is empty.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		sdk:         anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete issues one non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.sdk.Messages.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("llm: messages.new: %w", err)
	}
	return translate(msg), nil
}

// Stream issues one streaming Messages.New call, sending each incremental
// chunk to out until the stream completes or ctx is cancelled. out is
// closed by Stream before it returns.
func (c *Client) Stream(ctx context.Context, req Request, out chan<- StreamEvent) {
	defer close(out)
	params, err := c.buildParams(req)
	if err != nil {
		out <- StreamEvent{Kind: StreamDone, Err: err}
		return
	}
	stream := c.sdk.Messages.NewStreaming(ctx, *params)

	var textBuf, stopReason, messageID string
	var inputTokens, outputTokens int
	var toolCalls []ToolCall
	inputBuf := make(map[int64]*bytesBuf)
	blockToTool := make(map[int64]int)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			messageID = event.Message.ID
			inputTokens = int(event.Message.Usage.InputTokens)

		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				idx := len(toolCalls)
				toolCalls = append(toolCalls, ToolCall{ID: event.ContentBlock.ID, Name: event.ContentBlock.Name, Arguments: map[string]any{}})
				inputBuf[event.Index] = &bytesBuf{}
				blockToTool[event.Index] = idx
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					textBuf += event.Delta.Text
					select {
					case out <- StreamEvent{Kind: StreamText, Text: event.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			case "thinking_delta":
				if event.Delta.Thinking != "" {
					select {
					case out <- StreamEvent{Kind: StreamThinking, Text: event.Delta.Thinking}:
					case <-ctx.Done():
						return
					}
				}
			case "input_json_delta":
				if buf, ok := inputBuf[event.Index]; ok {
					buf.write(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if buf, ok := inputBuf[event.Index]; ok && buf.len() > 0 {
				var args map[string]any
				if err := json.Unmarshal(buf.bytes(), &args); err == nil {
					if idx, ok := blockToTool[event.Index]; ok {
						toolCalls[idx].Arguments = args
						toolCalls[idx].RawArgs = buf.string()
					}
				}
				delete(inputBuf, event.Index)
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = string(event.Delta.StopReason)
			}
			if event.Usage.OutputTokens > 0 {
				outputTokens = int(event.Usage.OutputTokens)
			}
		}
	}
	if err := stream.Err(); err != nil {
		out <- StreamEvent{Kind: StreamDone, Err: fmt.Errorf("llm: stream: %w", err)}
		return
	}

	resp := &Response{
		Text:         textBuf,
		ToolCalls:    toolCalls,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		StopReason:   stopReason,
	}
	for _, tc := range toolCalls {
		tc := tc
		select {
		case out <- StreamEvent{Kind: StreamToolCall, ToolCall: &tc}:
		case <-ctx.Done():
			return
		}
	}
	_ = messageID
	out <- StreamEvent{Kind: StreamDone, Response: resp}
}

// bytesBuf is a minimal growable byte buffer, avoiding a strings.Builder
// import solely for this accumulation.
type bytesBuf struct{ b []byte }

func (b *bytesBuf) write(s string) { b.b = append(b.b, s...) }
func (b *bytesBuf) len() int       { return len(b.b) }
func (b *bytesBuf) bytes() []byte  { return b.b }
func (b *bytesBuf) string() string { return string(b.b) }

func (c *Client) buildParams(req Request) (*anthropic.MessageNewParams, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = anthropic.Float(t)
	} else if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
		if req.ForceTool != "" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: req.ForceTool},
			}
		}
	}
	return params, nil
}

func encodeMessages(msgs []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			return nil, fmt.Errorf("llm: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("llm: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeTools(defs []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schemaJSON, err := json.Marshal(d.Parameters)
		if err != nil {
			return nil, fmt.Errorf("llm: marshal tool schema %s: %w", d.Name, err)
		}
		var inputSchema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schemaJSON, &inputSchema); err != nil {
			return nil, fmt.Errorf("llm: decode tool schema %s: %w", d.Name, err)
		}
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: inputSchema,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func translate(msg *anthropic.Message) *Response {
	resp := &Response{
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			var args map[string]any
			if block.Input != nil {
				_ = json.Unmarshal(block.Input, &args)
			}
			if args == nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
				RawArgs:   string(block.Input),
			})
		}
	}
	return resp
}
