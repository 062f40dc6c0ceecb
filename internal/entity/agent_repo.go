package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// AgentRepo is the typed accessor for Agent rows.
type AgentRepo struct {
	db store.Store
}

func NewAgentRepo(db store.Store) *AgentRepo { return &AgentRepo{db: db} }

func (r *AgentRepo) Create(ctx context.Context, a *Agent) (*Agent, error) {
	if a.Name == "" {
		return nil, errs.Validation("agent: name is required")
	}
	if a.AgentID == "" {
		a.AgentID = idgen.New(idgen.PrefixAgent)
	}
	a.CreatedAt = time.Now().UTC()
	_, err := r.db.Insert(ctx, TableAgents, store.Row{
		"id":          a.AgentID,
		"name":        a.Name,
		"description": a.Description,
		"created_by":  a.CreatedBy,
		"is_public":   a.IsPublic,
		"created_at":  a.CreatedAt,
	})
	if err != nil {
		return nil, errs.Internal("agent: insert failed", err)
	}
	return a, nil
}

func (r *AgentRepo) Get(ctx context.Context, agentID string) (*Agent, error) {
	row, err := r.db.GetOne(ctx, TableAgents, store.Filters{"id": agentID})
	if err != nil {
		return nil, errs.Internal("agent: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("agent")
	}
	return rowToAgent(row), nil
}

// Update applies the caller-editable fields. Creator-only authority is
// checked by the caller against the loaded row.
func (r *AgentRepo) Update(ctx context.Context, a *Agent) error {
	if a.AgentID == "" {
		return errs.Validation("agent: agent_id is required")
	}
	if a.Name == "" {
		return errs.Validation("agent: name is required")
	}
	n, err := r.db.Update(ctx, TableAgents, store.Filters{"id": a.AgentID}, store.Row{
		"name":        a.Name,
		"description": a.Description,
		"is_public":   a.IsPublic,
	})
	if err != nil {
		return errs.Internal("agent: update failed", err)
	}
	if n == 0 {
		return errs.NotFound("agent")
	}
	return nil
}

// VisibleTo returns the agents visible to viewerUserID: those they
// created, plus every public agent.
func (r *AgentRepo) VisibleTo(ctx context.Context, viewerUserID string) ([]*Agent, error) {
	owned, err := r.db.Get(ctx, TableAgents, store.Filters{"created_by": viewerUserID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("agent: list owned failed", err)
	}
	public, err := r.db.Get(ctx, TableAgents, store.Filters{"is_public": true}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("agent: list public failed", err)
	}
	seen := make(map[string]bool)
	var out []*Agent
	for _, row := range append(owned, public...) {
		a := rowToAgent(row)
		if seen[a.AgentID] {
			continue
		}
		seen[a.AgentID] = true
		out = append(out, a)
	}
	return out, nil
}

// Delete removes only the agents row; it does not cascade.
// CascadeDeleteAgent performs the leaf-first delete of everything
// scoped beneath an agent within one transaction.
func (r *AgentRepo) Delete(ctx context.Context, agentID string) error {
	n, err := r.db.Delete(ctx, TableAgents, store.Filters{"id": agentID})
	if err != nil {
		return errs.Internal("agent: delete failed", err)
	}
	if n == 0 {
		return errs.NotFound("agent")
	}
	return nil
}

func rowToAgent(row store.Row) *Agent {
	return &Agent{
		AgentID:     stringOr(row, "id"),
		Name:        stringOr(row, "name"),
		Description: stringOr(row, "description"),
		CreatedBy:   stringOr(row, "created_by"),
		IsPublic:    boolOr(row, "is_public"),
		CreatedAt:   timeOr(row, "created_at"),
	}
}
