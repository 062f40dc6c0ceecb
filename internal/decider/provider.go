package decider

import "context"

// Provider is the LLM call InstanceDecider drives: render a prompt from
// Input, request the Plan JSON schema as structured output, and return
// the raw JSON text. Kept minimal and provider-agnostic; the concrete
// implementation wraps an anthropic-sdk-go client.
type Provider interface {
	GeneratePlan(ctx context.Context, systemPrompt, userPrompt string, schema []byte) (planJSON []byte, err error)
}
