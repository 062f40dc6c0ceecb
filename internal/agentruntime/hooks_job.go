package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/llm"
)

// JobHook implements JobModule's chat-triggered end_condition check.
// The job-triggered interpretation path (working_source =
// JOB) is owned by JobEngine's own post-run Interpret call
// (internal/jobengine + internal/llm.JobInterpreter) rather than
// duplicated here, since JobEngine already holds the job's run result at
// that point; this hook returns early for any working_source other than
// CHAT.
type JobHook struct {
	jobs   *entity.JobRepo
	client *llm.Client
}

func NewJobHook(jobs *entity.JobRepo, client *llm.Client) *JobHook {
	return &JobHook{jobs: jobs, client: client}
}

func (h *JobHook) DataGathering(ctx context.Context, data *ContextData, instances []*entity.ModuleInstance) error {
	return nil
}

const checkEndConditionTool = "report_end_condition"

func (h *JobHook) AfterEventExecution(ctx context.Context, params AfterEventParams) (*HookResult, error) {
	if params.Instance == nil || params.Instance.ModuleClass != entity.ModuleJob {
		return nil, nil
	}
	if params.WorkingSource != entity.SourceChat || params.Instance.Status != entity.InstanceActive {
		return nil, nil
	}

	job, err := h.jobs.GetByInstance(ctx, params.Instance.InstanceID)
	if err != nil || job.TriggerConfig.EndCondition == "" {
		return nil, nil
	}
	if job.RelatedEntityID != "" && job.RelatedEntityID != params.CtxData.UserID {
		return nil, nil
	}

	satisfied, err := h.endConditionSatisfied(ctx, job.TriggerConfig.EndCondition, params.FinalOutput)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return nil, nil
	}

	if _, err := h.jobs.IncrementIteration(ctx, job.JobID); err != nil {
		return nil, err
	}
	if err := h.jobs.Complete(ctx, job.JobID, entity.JobCompleted, "", nil); err != nil {
		return nil, err
	}
	return &HookResult{
		InstanceID:      params.Instance.InstanceID,
		TriggerCallback: true,
		InstanceStatus:  entity.InstanceCompleted,
	}, nil
}

func (h *JobHook) endConditionSatisfied(ctx context.Context, endCondition, turnOutput string) (bool, error) {
	prompt := fmt.Sprintf("End condition: %q\n\nMost recent turn output:\n%s\n\nHas this interaction satisfied the end condition?", endCondition, turnOutput)
	resp, err := h.client.Complete(ctx, llm.Request{
		System:   "You decide whether an ongoing job's end condition has been met by the latest conversation turn.",
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		Tools: []llm.ToolDefinition{{
			Name:        checkEndConditionTool,
			Description: "Report whether the end condition is satisfied.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"satisfied": map[string]any{"type": "boolean"}},
				"required":   []string{"satisfied"},
			},
		}},
		ForceTool: checkEndConditionTool,
	})
	if err != nil {
		return false, err
	}
	for _, tc := range resp.ToolCalls {
		if tc.Name == checkEndConditionTool {
			var out struct {
				Satisfied bool `json:"satisfied"`
			}
			if err := json.Unmarshal([]byte(tc.RawArgs), &out); err != nil {
				return false, fmt.Errorf("agentruntime: decode end-condition verdict: %w", err)
			}
			return out.Satisfied, nil
		}
	}
	return false, nil
}
