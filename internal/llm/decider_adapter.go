package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// DeciderProvider adapts Client to decider.Provider (kept dependency-free
// of the decider package to avoid an import cycle; decider.Provider's
// method set matches GeneratePlan exactly). Structured output is obtained
// by forcing a single call to a synthetic "emit_plan" tool whose input
// schema is the plan schema — Claude does not guarantee well-formed JSON
// from free text, but tool-use arguments are schema-validated API-side.
type DeciderProvider struct {
	client *Client
}

func NewDeciderProvider(client *Client) *DeciderProvider {
	return &DeciderProvider{client: client}
}

const emitPlanTool = "emit_plan"

func (p *DeciderProvider) GeneratePlan(ctx context.Context, systemPrompt, userPrompt string, schema []byte) ([]byte, error) {
	var params map[string]any
	if err := json.Unmarshal(schema, &params); err != nil {
		return nil, fmt.Errorf("llm: decider schema is not valid JSON: %w", err)
	}

	resp, err := p.client.Complete(ctx, Request{
		System:   systemPrompt,
		Messages: []Message{{Role: "user", Content: userPrompt}},
		Tools: []ToolDefinition{{
			Name:        emitPlanTool,
			Description: "Emit the structured instance plan for this turn.",
			Parameters:  params,
		}},
		ForceTool: emitPlanTool,
	})
	if err != nil {
		return nil, err
	}
	for _, tc := range resp.ToolCalls {
		if tc.Name == emitPlanTool {
			return []byte(tc.RawArgs), nil
		}
	}
	return nil, fmt.Errorf("llm: model did not call %s", emitPlanTool)
}
