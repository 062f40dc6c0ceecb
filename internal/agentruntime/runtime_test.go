package agentruntime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_IsolatesMutableFields(t *testing.T) {
	base := newContextData("agent_1", "user_1", "hello")
	base.ChatHistory = []MemoryMessage{{InstanceID: "chat_aaaaaaaa", Role: "user", Content: "hi"}}
	base.UserProfile["name"] = "Alice"

	c := base.clone()
	c.ChatHistory = append(c.ChatHistory, MemoryMessage{Role: "assistant", Content: "hey"})
	c.UserProfile["name"] = "Bob"
	c.ExtraData["k"] = "v"

	assert.Len(t, base.ChatHistory, 1)
	assert.Equal(t, "Alice", base.UserProfile["name"])
	assert.Empty(t, base.ExtraData)
	assert.Equal(t, "agent_1", c.AgentID)
	assert.Equal(t, "hello", c.InputContent)
}

func TestMergeInto_AppendsOnlyNewChatHistory(t *testing.T) {
	base := newContextData("agent_1", "user_1", "hello")
	shared := MemoryMessage{InstanceID: "chat_aaaaaaaa", Role: "user", Content: "hi"}
	base.ChatHistory = []MemoryMessage{shared}

	src := base.clone()
	src.ChatHistory = append(src.ChatHistory, MemoryMessage{InstanceID: "chat_bbbbbbbb", Role: "assistant", Content: "from another narrative", MemoryType: "short_term"})

	mergeInto(base, src)

	require.Len(t, base.ChatHistory, 2)
	assert.Equal(t, "chat_bbbbbbbb", base.ChatHistory[1].InstanceID)

	// merging the same copy again adds nothing
	mergeInto(base, src)
	assert.Len(t, base.ChatHistory, 2)
}

func TestMergeMap_DeepMergesNestedDicts(t *testing.T) {
	dst := map[string]any{
		"profile": map[string]any{"name": "Alice", "tz": "UTC"},
		"count":   1,
	}
	src := map[string]any{
		"profile": map[string]any{"tz": "Europe/Berlin"},
		"count":   2,
		"fresh":   true,
	}

	mergeMap(dst, src)

	profile := dst["profile"].(map[string]any)
	assert.Equal(t, "Alice", profile["name"], "untouched nested key survives")
	assert.Equal(t, "Europe/Berlin", profile["tz"], "nested scalar overridden per key")
	assert.Equal(t, 2, dst["count"], "top-level scalar: last writer wins")
	assert.Equal(t, true, dst["fresh"])
}

func TestMergeInto_PreservesImmutableFields(t *testing.T) {
	base := newContextData("agent_1", "user_1", "hello")
	src := base.clone()
	src.AgentID = "agent_hijacked"
	src.UserID = "user_hijacked"
	src.InputContent = "something else"

	mergeInto(base, src)

	assert.Equal(t, "agent_1", base.AgentID)
	assert.Equal(t, "user_1", base.UserID)
	assert.Equal(t, "hello", base.InputContent)
}
