// Package idgen generates the opaque, prefixed identifiers used throughout
// the platform (agent_, job_, chat_, nar_, event_, inst_, ...).
package idgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// idPattern matches a well-formed generated id: a lowercase alpha prefix,
// an underscore, and 8 lowercase hex characters.
var idPattern = regexp.MustCompile(`^[a-z]+_[0-9a-f]{8}$`)

// Prefixes for every entity and module-instance class the platform mints.
const (
	PrefixAgent         = "agent"
	PrefixUser          = "user"
	PrefixNarrative     = "nar"
	PrefixEvent         = "event"
	PrefixJob           = "job"
	PrefixInbox         = "msg"
	PrefixAgentMessage  = "amsg"
	PrefixSocialEntity  = "ent"
	PrefixMCPUrl        = "mcp"
	PrefixRAGStore      = "rag"
	PrefixInstanceChat  = "chat"
	PrefixInstanceJob   = "job"
	PrefixAwareness     = "aware"
	PrefixSocialNetwork = "social"
	PrefixBasicInfo     = "basic"
	PrefixRAG           = "rag"
	PrefixSkill         = "skill"
)

// New generates a new id of the form "{prefix}_{8 hex chars}". The
// entropy source is a v4 UUID (github.com/google/uuid) with its dashes
// stripped and truncated to 8 hex characters; a whole UUID carries far
// more collision resistance than this scheme needs, but reusing the
// library elsewhere in the platform (test fixtures) keeps a single
// random-id dependency instead of two.
func New(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, shortHex())
}

// Valid reports whether id matches the canonical generated-id shape.
// InstanceSync uses this to distinguish an already-allocated instance id
// from a task_key that still needs one minted.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

func shortHex() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:8]
}
