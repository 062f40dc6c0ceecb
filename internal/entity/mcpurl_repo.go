package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// MCPUrlRepo is the typed accessor for MCPUrl rows: a per-(agent,user)
// named remote tool endpoint.
type MCPUrlRepo struct {
	db store.Store
}

func NewMCPUrlRepo(db store.Store) *MCPUrlRepo { return &MCPUrlRepo{db: db} }

func (r *MCPUrlRepo) Create(ctx context.Context, m *MCPUrl) (*MCPUrl, error) {
	if m.AgentID == "" || m.URL == "" {
		return nil, errs.Validation("mcp_url: agent_id and url are required")
	}
	if m.MCPID == "" {
		m.MCPID = idgen.New(idgen.PrefixMCPUrl)
	}
	if m.ConnectionStatus == "" {
		m.ConnectionStatus = ConnectionUnknown
	}
	_, err := r.db.Insert(ctx, TableMCPUrls, mcpURLToRow(m))
	if err != nil {
		return nil, errs.Internal("mcp_url: insert failed", err)
	}
	return m, nil
}

func (r *MCPUrlRepo) Get(ctx context.Context, mcpID string) (*MCPUrl, error) {
	row, err := r.db.GetOne(ctx, TableMCPUrls, store.Filters{"id": mcpID})
	if err != nil {
		return nil, errs.Internal("mcp_url: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("mcp url")
	}
	return rowToMCPURL(row), nil
}

func (r *MCPUrlRepo) ForAgentUser(ctx context.Context, agentID, userID string) ([]*MCPUrl, error) {
	rows, err := r.db.Get(ctx, TableMCPUrls, store.Filters{"agent_id": agentID, "user_id": userID, "is_enabled": true}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("mcp_url: list failed", err)
	}
	out := make([]*MCPUrl, len(rows))
	for i, row := range rows {
		out[i] = rowToMCPURL(row)
	}
	return out, nil
}

// Update applies the caller-editable fields. A URL change invalidates
// any prior probe result, so connection_status resets to unknown.
func (r *MCPUrlRepo) Update(ctx context.Context, m *MCPUrl) error {
	if m.MCPID == "" {
		return errs.Validation("mcp_url: mcp_id is required")
	}
	existing, err := r.Get(ctx, m.MCPID)
	if err != nil {
		return err
	}
	data := store.Row{
		"name":        m.Name,
		"url":         m.URL,
		"description": m.Description,
		"is_enabled":  m.IsEnabled,
	}
	if m.URL != existing.URL {
		data["connection_status"] = string(ConnectionUnknown)
		data["last_error"] = ""
	}
	if _, err := r.db.Update(ctx, TableMCPUrls, store.Filters{"id": m.MCPID}, data); err != nil {
		return errs.Internal("mcp_url: update failed", err)
	}
	return nil
}

func (r *MCPUrlRepo) Delete(ctx context.Context, mcpID string) error {
	n, err := r.db.Delete(ctx, TableMCPUrls, store.Filters{"id": mcpID})
	if err != nil {
		return errs.Internal("mcp_url: delete failed", err)
	}
	if n == 0 {
		return errs.NotFound("mcp url")
	}
	return nil
}

// RecordHealth updates the connection probe result: a successful handshake clears last_error, a failed
// one records it.
func (r *MCPUrlRepo) RecordHealth(ctx context.Context, mcpID string, status ConnectionStatus, lastError string) error {
	now := time.Now().UTC()
	_, err := r.db.Update(ctx, TableMCPUrls, store.Filters{"id": mcpID}, store.Row{
		"connection_status": string(status),
		"last_check_time":   now,
		"last_error":        lastError,
	})
	if err != nil {
		return errs.Internal("mcp_url: record health failed", err)
	}
	return nil
}

func mcpURLToRow(m *MCPUrl) store.Row {
	return store.Row{
		"id":                m.MCPID,
		"agent_id":          m.AgentID,
		"user_id":           m.UserID,
		"name":              m.Name,
		"url":               m.URL,
		"description":       m.Description,
		"is_enabled":        m.IsEnabled,
		"connection_status": string(m.ConnectionStatus),
		"last_error":        m.LastError,
	}
}

func rowToMCPURL(row store.Row) *MCPUrl {
	return &MCPUrl{
		MCPID:            stringOr(row, "id"),
		AgentID:          stringOr(row, "agent_id"),
		UserID:           stringOr(row, "user_id"),
		Name:             stringOr(row, "name"),
		URL:              stringOr(row, "url"),
		Description:      stringOr(row, "description"),
		IsEnabled:        boolOr(row, "is_enabled"),
		ConnectionStatus: ConnectionStatus(stringOr(row, "connection_status")),
		LastCheckTime:    timePtrOr(row, "last_check_time"),
		LastError:        stringOr(row, "last_error"),
	}
}
