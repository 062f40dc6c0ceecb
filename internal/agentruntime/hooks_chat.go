package agentruntime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/memoryclient"
	"github.com/agentctx/platform/internal/tokencount"
)

const (
	longTermCap       = 40 // 20 round-pairs
	shortTermCapK     = 15
	shortTermTokenCap = 4000 // only applies when a tokencount.Counter is configured
)

// ChatHook implements ChatModule's dual-track memory contract.
type ChatHook struct {
	instances *entity.InstanceRepo
	memory    *memoryclient.Client
	tokens    *tokencount.Counter
}

func NewChatHook(instances *entity.InstanceRepo, memory *memoryclient.Client) *ChatHook {
	return &ChatHook{instances: instances, memory: memory}
}

// WithTokenCounter attaches a model-aware tokencount.Counter so short-term
// memory is bounded by token budget rather than a flat message count.
// Additive: existing callers of NewChatHook are unaffected.
func (h *ChatHook) WithTokenCounter(c *tokencount.Counter) *ChatHook {
	h.tokens = c
	return h
}

// DataGathering loads long-term memory from MemoryClient (falling back to
// DB-stored per-instance memory) and short-term memory from the user's
// other chat instances.
func (h *ChatHook) DataGathering(ctx context.Context, data *ContextData, instances []*entity.ModuleInstance) error {
	var self *entity.ModuleInstance
	for _, inst := range instances {
		if inst.ModuleClass == entity.ModuleChat && inst.UserID != nil && *inst.UserID == data.UserID {
			self = inst
			break
		}
	}
	if self == nil {
		return nil
	}

	longTerm := h.longTermMemory(ctx, self, data.InputContent)
	data.ChatHistory = append(data.ChatHistory, longTerm...)

	shortTerm, err := h.shortTermMemory(ctx, data.UserID, self.InstanceID)
	if err != nil {
		return err
	}
	data.ChatHistory = append(data.ChatHistory, shortTerm...)
	return nil
}

// longTermMemory tries MemoryClient.Recall first; on any error (service
// unreachable) it falls back to the instance's own DB-stored JSON memory.
func (h *ChatHook) longTermMemory(ctx context.Context, self *entity.ModuleInstance, query string) []MemoryMessage {
	if h.memory != nil {
		episodes, err := h.memory.Recall(ctx, narrativeHint(self), query, longTermCap/2)
		if err == nil {
			out := make([]MemoryMessage, 0, len(episodes))
			for _, ep := range episodes {
				out = append(out, MemoryMessage{InstanceID: self.InstanceID, Role: ep.Role, Content: ep.Content, MemoryType: "long_term", Timestamp: ep.Timestamp})
			}
			return capMessages(out, longTermCap)
		}
	}
	return capMessages(memoryFromState(self, "long_term"), longTermCap)
}

// shortTermMemory pulls the K most recent messages from the user's other
// chat instances, tagging each as short_term and keeping only the
// assistant side of non-chat turns.
func (h *ChatHook) shortTermMemory(ctx context.Context, userID, excludeInstanceID string) ([]MemoryMessage, error) {
	others, err := h.instances.ChatInstancesOfUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []MemoryMessage
	for _, inst := range others {
		if inst.InstanceID == excludeInstanceID {
			continue
		}
		out = append(out, memoryFromState(inst, "short_term")...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if h.tokens != nil {
		return h.fitByTokenBudget(out), nil
	}
	return capMessages(out, shortTermCapK), nil
}

// fitByTokenBudget keeps the most recent messages (out is sorted
// newest-first) that fit within shortTermTokenCap.
func (h *ChatHook) fitByTokenBudget(out []MemoryMessage) []MemoryMessage {
	oldestFirst := make([][2]string, len(out))
	for i, m := range out {
		oldestFirst[len(out)-1-i] = [2]string{m.Role, m.Content}
	}
	fitted := h.tokens.FitMessagesWithinBudget(oldestFirst, shortTermTokenCap)
	keep := len(fitted)
	if keep > len(out) {
		keep = len(out)
	}
	return out[:keep]
}

func memoryFromState(inst *entity.ModuleInstance, memoryType string) []MemoryMessage {
	raw, ok := inst.State["memory"]
	if !ok {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]MemoryMessage, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		// Turns with working_source != chat are stored assistant-only by
		// AfterEventExecution, so no further filter is applied here.
		if role == "" || content == "" {
			continue
		}
		ts, _ := m["timestamp"].(string)
		at, _ := time.Parse(time.RFC3339Nano, ts)
		out = append(out, MemoryMessage{InstanceID: inst.InstanceID, Role: role, Content: content, MemoryType: memoryType, Timestamp: at})
	}
	return out
}

func capMessages(msgs []MemoryMessage, max int) []MemoryMessage {
	if len(msgs) <= max {
		return msgs
	}
	return msgs[:max]
}

func narrativeHint(inst *entity.ModuleInstance) string {
	return fmt.Sprintf("instance:%s", inst.InstanceID)
}

// AfterEventExecution appends the user turn (for chat-sourced turns only)
// and the user-visible assistant turn to the chat instance's per-instance
// JSON memory.
func (h *ChatHook) AfterEventExecution(ctx context.Context, params AfterEventParams) (*HookResult, error) {
	if params.Instance == nil || params.Instance.ModuleClass != entity.ModuleChat {
		return nil, nil
	}
	visible := params.FinalOutput
	if visible == "" {
		visible = "(no response)"
	}
	if params.WorkingSource == entity.SourceChat {
		if err := h.instances.AppendMemory(ctx, params.Instance.InstanceID, "user", params.InputContent); err != nil {
			return nil, err
		}
	}
	if err := h.instances.AppendMemory(ctx, params.Instance.InstanceID, "assistant", visible); err != nil {
		return nil, err
	}
	return nil, nil
}
