package moduletools

import (
	"context"
	"fmt"
	"time"

	"github.com/agentctx/platform/internal/embedding"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/mcp"
	"github.com/robfig/cron/v3"
)

// JobDeps bundles what JobModule's own tool handlers need: direct
// EntityRepo access rather than going back through InstanceSync, since
// these tools create ad hoc single jobs mid-turn instead of materializing
// a decider plan.
type JobDeps struct {
	Instances *entity.InstanceRepo
	Jobs      *entity.JobRepo
	Embedder  embedding.Embedder
}

// Job builds JobModule's tool surface: job_create lets the agent loop
// schedule a background task directly (the synthetic-instance fallback
// path relies on this staying reachable even when the
// decider produced no JobModule instance), job_cancel and job_status round
// out the lifecycle a turn can drive without a full replan.
func Job(deps JobDeps) []mcp.LocalTool {
	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if deps.Embedder == nil {
		deps.Embedder = embedding.NewHashing()
	}
	return []mcp.LocalTool{
		{
			Name:        "job_create",
			Description: "Schedule a background job: one_off (run_at), scheduled (cron or interval_seconds), or ongoing (interval_seconds + end_condition).",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":             map[string]any{"type": "string"},
					"payload":           map[string]any{"type": "string"},
					"job_type":          map[string]any{"type": "string", "enum": []string{"one_off", "scheduled", "ongoing"}},
					"run_at":            map[string]any{"type": "string", "description": "RFC3339 timestamp, one_off only"},
					"cron":              map[string]any{"type": "string"},
					"interval_seconds":  map[string]any{"type": "integer"},
					"end_condition":     map[string]any{"type": "string"},
					"max_iterations":    map[string]any{"type": "integer"},
					"related_entity_id": map[string]any{"type": "string"},
					"narrative_id":      map[string]any{"type": "string"},
					"user_id":           map[string]any{"type": "string"},
				},
				"required": []string{"title", "payload", "user_id"},
			},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				return createJob(ctx, deps, cronParser, agentID, args)
			},
		},
		{
			Name:        "job_cancel",
			Description: "Cancel a job by job_id. Only the job's creator may cancel it.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"job_id": map[string]any{"type": "string"}, "requesting_user_id": map[string]any{"type": "string"}},
				"required":   []string{"job_id", "requesting_user_id"},
			},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				return cancelJob(ctx, deps, args)
			},
		},
		{
			Name:        "job_status",
			Description: "Report a job's current status, next_run_time, and iteration_count.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"job_id": map[string]any{"type": "string"}},
				"required":   []string{"job_id"},
			},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				jobID, _ := args["job_id"].(string)
				job, err := deps.Jobs.Get(ctx, jobID)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("status=%s next_run_time=%v iteration_count=%d", job.Status, job.NextRunTime, job.IterationCount), nil
			},
		},
	}
}

func createJob(ctx context.Context, deps JobDeps, cronParser cron.Parser, agentID string, args map[string]any) (string, error) {
	title, _ := args["title"].(string)
	payload, _ := args["payload"].(string)
	userID, _ := args["user_id"].(string)
	if title == "" || payload == "" || userID == "" {
		return "", errs.Validation("moduletools: job_create requires title, payload, user_id")
	}

	jobType := entity.JobType(stringArg(args, "job_type"))
	narrativeID := stringArg(args, "narrative_id")
	relatedEntityID := stringArg(args, "related_entity_id")
	now := time.Now().UTC()

	tc := entity.TriggerConfig{
		Cron:            stringArg(args, "cron"),
		IntervalSeconds: intArg(args, "interval_seconds"),
		EndCondition:    stringArg(args, "end_condition"),
		MaxIterations:   intArg(args, "max_iterations"),
	}

	var nextRun *time.Time
	switch {
	case tc.EndCondition != "" && tc.IntervalSeconds > 0:
		jobType = entity.JobOngoing
		t := now
		nextRun = &t
	case tc.Cron != "":
		jobType = entity.JobScheduled
		sched, err := cronParser.Parse(tc.Cron)
		if err != nil {
			return "", errs.Validation("moduletools: invalid cron: " + err.Error())
		}
		t := sched.Next(now)
		nextRun = &t
	case tc.IntervalSeconds > 0:
		jobType = entity.JobScheduled
		t := now.Add(time.Duration(tc.IntervalSeconds) * time.Second)
		nextRun = &t
	default:
		jobType = entity.JobOneOff
		if runAt := stringArg(args, "run_at"); runAt != "" {
			t, err := time.Parse(time.RFC3339, runAt)
			if err != nil {
				return "", errs.Validation("moduletools: invalid run_at: " + err.Error())
			}
			tc.RunAt = &t
			nextRun = &t
		} else {
			nextRun = &now
		}
	}

	vec, err := deps.Embedder.Embed(ctx, title+" "+payload)
	if err != nil {
		vec = nil
	}

	inst, err := deps.Instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass:      entity.ModuleJob,
		AgentID:          agentID,
		UserID:           &userID,
		Status:           entity.InstanceActive,
		Description:      title,
		RoutingEmbedding: vec,
	})
	if err != nil {
		return "", err
	}

	job := &entity.Job{
		InstanceID:         inst.InstanceID,
		AgentID:            agentID,
		UserID:             userID,
		JobType:            jobType,
		Title:              title,
		Description:        title,
		Payload:            payload,
		TriggerConfig:      tc,
		Status:             entity.JobPending,
		NextRunTime:        nextRun,
		RelatedEntityID:    relatedEntityID,
		NarrativeID:        narrativeID,
		NotificationMethod: entity.NotifyInbox,
		Embedding:          vec,
	}
	created, err := deps.Jobs.Create(ctx, job)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created job_id=%s instance_id=%s job_type=%s", created.JobID, inst.InstanceID, created.JobType), nil
}

func cancelJob(ctx context.Context, deps JobDeps, args map[string]any) (string, error) {
	jobID, _ := args["job_id"].(string)
	requester, _ := args["requesting_user_id"].(string)
	job, err := deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.UserID != requester {
		return "", errs.Unauthorized("moduletools: only the job's creator may cancel it")
	}
	if err := deps.Jobs.Complete(ctx, jobID, entity.JobCancelled, "", nil); err != nil {
		return "", err
	}
	if err := deps.Instances.SetStatus(ctx, job.InstanceID, entity.InstanceCancelled); err != nil {
		return "", err
	}
	return "cancelled", nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
