// Package llm wraps github.com/anthropics/anthropic-sdk-go behind the
// provider-agnostic message/tool vocabulary the rest of the platform
// depends on, so AgentRuntime, InstanceDecider, and JobEngine's
// interpretation hook never import the SDK directly.
package llm

// Message is one turn of a conversation, universal across callers.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition is one callable tool surfaced to the model, expressed as
// a JSON Schema input shape.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string
}

// Request is one non-streaming or streaming completion call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
	// ForceTool, when set, asks the model to return exactly one call to
	// the named tool — used to coerce structured JSON output (InstanceDecider
	// and JobEngine's interpretation hook both ride this mechanism instead
	// of free-text JSON, which Claude does not guarantee well-formed).
	ForceTool string
}

// Response is a completed (non-streaming) model turn.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// StreamEventKind tags StreamEvent's variants.
type StreamEventKind string

const (
	StreamText     StreamEventKind = "text"
	StreamThinking StreamEventKind = "thinking"
	StreamToolCall StreamEventKind = "tool_call"
	StreamDone     StreamEventKind = "done"
)

// StreamEvent is one incremental chunk of a streaming completion.
type StreamEvent struct {
	Kind     StreamEventKind
	Text     string
	ToolCall *ToolCall
	Response *Response // set on StreamDone
	Err      error
}
