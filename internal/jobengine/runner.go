package jobengine

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/entity"
)

// RunRequest is everything AgentRuntime needs to drive one job-triggered
// agent turn.
type RunRequest struct {
	AgentID           string
	EffectiveUserID   string
	WorkingSource     entity.WorkingSource
	ForcedNarrativeID string
	Prompt            string
}

// RunResult is AgentRuntime's answer: the user-facing output plus the
// ordered event log InstanceSync/Event persistence records.
type RunResult struct {
	FinalOutput string
	EventLog    []entity.EventLogEntry
}

// AgentRunner is the subset of AgentRuntime JobEngine depends on. Defined
// here, at the consumer, so AgentRuntime can evolve independently.
type AgentRunner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// InterpretRequest is the LLM post-hook's input.
type InterpretRequest struct {
	Job       *entity.Job
	RunResult *RunResult
}

// InterpretResult is the LLM post-hook's structured verdict.
type InterpretResult struct {
	Status              entity.JobStatus
	Process             []string
	NextRunTime         *time.Time
	LastError           string
	ShouldNotify        bool
	NotificationSummary string
}
