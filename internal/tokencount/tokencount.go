// Package tokencount provides model-aware token counting and
// budget-fitting for narrative summaries and chat history, replacing a
// byte-length truncation with one that actually reflects what the LLM
// provider bills and context-limits on.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a cached tiktoken encoding for one model family.
type Counter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*tiktoken.Tiktoken)
)

// New returns a Counter for model, falling back to cl100k_base (the
// encoding Claude/Gemini prompts are approximated with, same as every
// non-OpenAI model) when the model has no registered tiktoken encoding.
func New(model string) (*Counter, error) {
	cacheMu.RLock()
	enc, ok := cache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokencount: load cl100k_base fallback: %w", err)
		}
	}
	cacheMu.Lock()
	cache[model] = enc
	cacheMu.Unlock()
	return &Counter{encoding: enc}, nil
}

// Count returns text's token count under this counter's encoding.
func (c *Counter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// TruncateToTokens trims text to at most maxTokens tokens, cutting from
// the end. Used for narrative summaries and job prompt sections that
// carry a per-section budget in the composed prompt.
func (c *Counter) TruncateToTokens(text string, maxTokens int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// FitMessagesWithinBudget keeps the most recent messages (role, content
// pairs) that fit within maxTokens, used by ChatModule's short-term
// memory assembly to bound history sent to the model.
func (c *Counter) FitMessagesWithinBudget(messages [][2]string, maxTokens int) [][2]string {
	const perMessageOverhead = 3
	c.mu.Lock()
	defer c.mu.Unlock()

	budget := maxTokens - perMessageOverhead
	var fitted [][2]string
	for i := len(messages) - 1; i >= 0; i-- {
		role, content := messages[i][0], messages[i][1]
		n := perMessageOverhead + len(c.encoding.Encode(role, nil, nil)) + len(c.encoding.Encode(content, nil, nil))
		if n > budget {
			break
		}
		fitted = append([][2]string{{role, content}}, fitted...)
		budget -= n
	}
	return fitted
}
