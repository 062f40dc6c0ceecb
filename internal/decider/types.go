// Package decider implements InstanceDecider: the LLM-driven
// planner that turns a user turn into an ordered plan of module
// instances plus an execution path, followed by the post-LLM validation
// invariants run before InstanceSync may consume the plan.
package decider

import "github.com/agentctx/platform/internal/entity"

// ExecutionPath is the decider's top-level routing decision.
type ExecutionPath string

const (
	ExecutionAgentLoop     ExecutionPath = "agent_loop"
	ExecutionDirectTrigger ExecutionPath = "direct_trigger"
)

// DirectTrigger names a tool to invoke immediately, bypassing the full
// agent loop.
type DirectTrigger struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// JobConfig is the job-specific payload of an InstanceDict whose
// module_class is JobModule.
type JobConfig struct {
	Title           string  `json:"title"`
	Payload         string  `json:"payload"`
	Cron            string  `json:"cron,omitempty"`
	IntervalSeconds int     `json:"interval_seconds,omitempty"`
	ScheduledAt     *string `json:"scheduled_at,omitempty"` // RFC3339; nil means unset
	EndCondition    string  `json:"end_condition,omitempty"`
	MaxIterations   int     `json:"max_iterations,omitempty"`
	RelatedEntityID string  `json:"related_entity_id,omitempty"`
}

// InstanceDict is one planned instance, keyed within the plan by
// TaskKey rather than an allocated instance id.
type InstanceDict struct {
	TaskKey     string                `json:"task_key"`
	InstanceID  string                `json:"instance_id,omitempty"`
	ModuleClass entity.ModuleClass    `json:"module_class"`
	Description string                `json:"description"`
	Status      entity.InstanceStatus `json:"status"`
	DependsOn   []string              `json:"depends_on"`
	JobConfig   *JobConfig            `json:"job_config,omitempty"`

	// Dependencies holds DependsOn resolved from task_key to allocated
	// instance id; InstanceSync populates this, the planner never sets it.
	Dependencies []string `json:"-"`
}

// Plan is the decider's single structured LLM output.
type Plan struct {
	ExecutionPath      ExecutionPath  `json:"execution_path"`
	ActiveInstances    []InstanceDict `json:"active_instances"`
	DirectTrigger      *DirectTrigger `json:"direct_trigger,omitempty"`
	Reasoning          string         `json:"reasoning"`
	ChangesExplanation string         `json:"changes_explanation"`
	RelationshipGraph  map[string]any `json:"relationship_graph"`
}

// JobInfo is one entry of the job_info_map the decider is given as input
// context, covering every active job of the narrative.
type JobInfo struct {
	RelatedEntityID string
	JobType         entity.JobType
	Title           string
}

// Input is everything InstanceDecider needs for its single LLM call.
type Input struct {
	UserText         string
	TaskInstances    []*entity.ModuleInstance
	CapabilityInfo   string
	NarrativeSummary string
	HistoryMarkdown  string
	AwarenessText    string
	CurrentUserID    string
	JobInfoMap       map[string]JobInfo
}
