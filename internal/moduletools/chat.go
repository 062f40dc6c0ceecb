// Package moduletools builds the per-module LocalTool sets mcp.LocalServer
// hosts: the concrete tools ChatModule, JobModule, and
// GeminiRAGModule expose to the agent loop and to external MCP clients.
package moduletools

import (
	"context"
	"fmt"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/mcp"
)

// sendMessageToolName must match agentruntime's constant of the same
// name; it is redefined here rather than imported to keep moduletools
// free of an agentruntime dependency.
const sendMessageToolName = "send_message_to_user_directly"

// Chat builds ChatModule's tool surface: the one tool every turn needs
// to produce a user-visible reply distinct from internal reasoning text.
func Chat(instances *entity.InstanceRepo) []mcp.LocalTool {
	return []mcp.LocalTool{
		{
			Name:        sendMessageToolName,
			Description: "Send a message directly to the user. The content argument is what the user sees; call this exactly once per turn with your final reply.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"content": map[string]any{"type": "string"}},
				"required":   []string{"content"},
			},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				content, _ := args["content"].(string)
				if content == "" {
					return "", fmt.Errorf("moduletools: send_message_to_user_directly requires content")
				}
				return content, nil
			},
		},
	}
}

// agentLevelInstanceID resolves the single public instance of class for
// agentID, the shared lookup every capability-module tool handler needs
// before touching its own sub-table.
func agentLevelInstanceID(ctx context.Context, instances *entity.InstanceRepo, agentID string, class entity.ModuleClass) (string, error) {
	public, err := instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	for _, inst := range public {
		if inst.ModuleClass == class {
			return inst.InstanceID, nil
		}
	}
	return "", fmt.Errorf("moduletools: agent %s has no %s instance", agentID, class)
}
