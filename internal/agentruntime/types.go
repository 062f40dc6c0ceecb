// Package agentruntime implements AgentRuntime: one turn of
// one agent, from narrative resolution through module loading, hook
// data-gathering, execution, and post-hook persistence.
package agentruntime

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/llm"
)

// MemoryMessage is one dual-track chat-history entry ContextData.ChatHistory
// carries into the agent loop's prompt.
type MemoryMessage struct {
	InstanceID string    `json:"instance_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	MemoryType string    `json:"memory_type"` // long_term | short_term
	Timestamp  time.Time `json:"timestamp"`
}

// ContextData is the shared, hook-mutable turn context.
// Fields marked immutable are set once by AgentRuntime before hooks run
// and must not be overwritten by a hook's returned copy; the merge step
// enforces this regardless.
type ContextData struct {
	// Immutable
	AgentID      string
	UserID       string
	InputContent string

	// List fields: each hook may append new elements.
	ChatHistory []MemoryMessage

	// Dict fields: deep-merged, per-key override for scalars.
	JobsInformation map[string]any
	UserProfile     map[string]any
	ExtraData       map[string]any
}

func newContextData(agentID, userID, input string) *ContextData {
	return &ContextData{
		AgentID:         agentID,
		UserID:          userID,
		InputContent:    input,
		JobsInformation: map[string]any{},
		UserProfile:     map[string]any{},
		ExtraData:       map[string]any{},
	}
}

// clone deep-copies the mutable fields so each hook observes an
// independent ContextData.
func (c *ContextData) clone() *ContextData {
	out := &ContextData{AgentID: c.AgentID, UserID: c.UserID, InputContent: c.InputContent}
	out.ChatHistory = append([]MemoryMessage{}, c.ChatHistory...)
	out.JobsInformation = cloneMap(c.JobsInformation)
	out.UserProfile = cloneMap(c.UserProfile)
	out.ExtraData = cloneMap(c.ExtraData)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = cloneMap(nested)
		}
		out[k] = v
	}
	return out
}

// TurnEventKind tags the streamed turn protocol messages.
type TurnEventKind string

const (
	TurnProgress      TurnEventKind = "progress"
	TurnAgentThinking TurnEventKind = "agent_thinking"
	TurnAgentResponse TurnEventKind = "agent_response"
	TurnToolCall      TurnEventKind = "tool_call"
	TurnError         TurnEventKind = "error"
	TurnComplete      TurnEventKind = "complete"
)

// TurnEvent is one streamed message of the turn's execution.
type TurnEvent struct {
	Kind     TurnEventKind
	Text     string
	ToolName string
	Output   string
	Err      error
}

// HookResult is a module's verdict on its controlling instance, returned
// from hook_after_event_execution.
type HookResult struct {
	InstanceID          string
	TriggerCallback     bool
	InstanceStatus      entity.InstanceStatus
	OutputData          map[string]any
	NotificationMessage string
}

// AfterEventParams is hook_after_event_execution's input.
type AfterEventParams struct {
	InputContent  string
	FinalOutput   string
	EventID       string
	CtxData       *ContextData
	Instance      *entity.ModuleInstance
	WorkingSource entity.WorkingSource
}

// Hook is the two-method contract every module exposes.
type Hook interface {
	DataGathering(ctx context.Context, data *ContextData, instances []*entity.ModuleInstance) error
	AfterEventExecution(ctx context.Context, params AfterEventParams) (*HookResult, error)
}

// ToolDispatcher routes a model tool call to the bound local MCP server
// or remote MCP URL and returns the tool result text.
type ToolDispatcher interface {
	Tools(ctx context.Context, agentID string) ([]llm.ToolDefinition, error)
	Dispatch(ctx context.Context, agentID string, call llm.ToolCall) (string, error)
}

const sendMessageToolName = "send_message_to_user_directly"
