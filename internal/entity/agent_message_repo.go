package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// AgentMessageRepo is the agent-to-agent analogue of InboxRepo.
type AgentMessageRepo struct {
	db store.Store
}

func NewAgentMessageRepo(db store.Store) *AgentMessageRepo { return &AgentMessageRepo{db: db} }

func (r *AgentMessageRepo) Create(ctx context.Context, m *AgentMessage) (*AgentMessage, error) {
	if m.AgentID == "" {
		return nil, errs.Validation("agent_message: agent_id is required")
	}
	if m.MessageID == "" {
		m.MessageID = idgen.New(idgen.PrefixAgentMessage)
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.Insert(ctx, TableAgentMessages, store.Row{
		"id":          m.MessageID,
		"agent_id":    m.AgentID,
		"title":       m.Title,
		"content":     m.Content,
		"source_type": string(m.SourceType),
		"source_id":   m.SourceID,
		"event_id":    m.EventID,
		"is_response": m.IsResponse,
		"created_at":  m.CreatedAt,
	})
	if err != nil {
		return nil, errs.Internal("agent_message: insert failed", err)
	}
	return m, nil
}

func (r *AgentMessageRepo) ForAgent(ctx context.Context, agentID string) ([]*AgentMessage, error) {
	rows, err := r.db.Get(ctx, TableAgentMessages, store.Filters{"agent_id": agentID}, store.QueryOpts{OrderBy: "created_at DESC"})
	if err != nil {
		return nil, errs.Internal("agent_message: list failed", err)
	}
	out := make([]*AgentMessage, len(rows))
	for i, row := range rows {
		out[i] = rowToAgentMessage(row)
	}
	return out, nil
}

func rowToAgentMessage(row store.Row) *AgentMessage {
	return &AgentMessage{
		MessageID:  stringOr(row, "id"),
		AgentID:    stringOr(row, "agent_id"),
		Title:      stringOr(row, "title"),
		Content:    stringOr(row, "content"),
		SourceType: SourceType(stringOr(row, "source_type")),
		SourceID:   stringOr(row, "source_id"),
		EventID:    stringOr(row, "event_id"),
		IsResponse: boolOr(row, "is_response"),
		CreatedAt:  timeOr(row, "created_at"),
	}
}
