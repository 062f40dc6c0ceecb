package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/jobengine"
)

// JobInterpreter adapts Client to jobengine.Interpreter:
// one forced tool call reporting the run's verdict, constrained to the
// job_type's legal status transitions.
type JobInterpreter struct {
	client *Client
}

func NewJobInterpreter(client *Client) *JobInterpreter {
	return &JobInterpreter{client: client}
}

const reportOutcomeTool = "report_job_outcome"

var reportOutcomeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status":               map[string]any{"type": "string", "enum": []string{"active", "completed", "failed"}},
		"process_note":         map[string]any{"type": "string"},
		"next_run_in_seconds":  map[string]any{"type": "integer"},
		"last_error":           map[string]any{"type": "string"},
		"should_notify":        map[string]any{"type": "boolean"},
		"notification_summary": map[string]any{"type": "string"},
	},
	"required": []string{"status", "should_notify"},
}

func (p *JobInterpreter) Interpret(ctx context.Context, req jobengine.InterpretRequest) (*jobengine.InterpretResult, error) {
	job := req.Job
	prompt := fmt.Sprintf(
		"Job %q (type=%s, iteration=%d/%s) just ran.\n\nFinal output:\n%s\n\nDecide the next status per these rules:\n"+
			"- one_off: success -> completed, failure -> failed (no next run).\n"+
			"- scheduled: success -> active with next_run_in_seconds defaulted to the interval/cron, override only when context demands.\n"+
			"- ongoing: success -> active with a chosen next_run_in_seconds, unless end_condition %q is met or iteration_count reached max_iterations -> completed.",
		job.Title, job.JobType, job.IterationCount, maxIterationsLabel(job.TriggerConfig.MaxIterations),
		req.RunResult.FinalOutput, job.TriggerConfig.EndCondition,
	)

	resp, err := p.client.Complete(ctx, Request{
		System:   "You interpret the outcome of one autonomous job execution and report its next scheduling state.",
		Messages: []Message{{Role: "user", Content: prompt}},
		Tools: []ToolDefinition{{
			Name:        reportOutcomeTool,
			Description: "Report the job's terminal/continuation verdict.",
			Parameters:  reportOutcomeSchema,
		}},
		ForceTool: reportOutcomeTool,
	})
	if err != nil {
		return nil, err
	}

	var verdict struct {
		Status              string `json:"status"`
		ProcessNote         string `json:"process_note"`
		NextRunInSeconds    int    `json:"next_run_in_seconds"`
		LastError           string `json:"last_error"`
		ShouldNotify        bool   `json:"should_notify"`
		NotificationSummary string `json:"notification_summary"`
	}
	found := false
	for _, tc := range resp.ToolCalls {
		if tc.Name == reportOutcomeTool {
			if err := json.Unmarshal([]byte(tc.RawArgs), &verdict); err != nil {
				return nil, fmt.Errorf("llm: decode job verdict: %w", err)
			}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("llm: model did not call %s", reportOutcomeTool)
	}

	result := &jobengine.InterpretResult{
		Status:              entity.JobStatus(verdict.Status),
		LastError:           verdict.LastError,
		ShouldNotify:        verdict.ShouldNotify,
		NotificationSummary: verdict.NotificationSummary,
	}
	if verdict.ProcessNote != "" {
		result.Process = []string{verdict.ProcessNote}
	}
	if result.Status == entity.JobActive && verdict.NextRunInSeconds > 0 {
		next := time.Now().UTC().Add(time.Duration(verdict.NextRunInSeconds) * time.Second)
		result.NextRunTime = &next
	}
	return result, nil
}

func maxIterationsLabel(max int) string {
	if max <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", max)
}
