package jobengine

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/store/sqlstore"
)

func newEngineTestDeps(t *testing.T) (*entity.JobRepo, *entity.InstanceRepo) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ` + entity.TableJobs + ` (
		id TEXT PRIMARY KEY, instance_id TEXT, agent_id TEXT, user_id TEXT,
		job_type TEXT, title TEXT, description TEXT, payload TEXT,
		trigger_config TEXT, status TEXT, process TEXT,
		last_run_time TIMESTAMP, next_run_time TIMESTAMP, last_error TEXT,
		iteration_count INTEGER, related_entity_id TEXT, narrative_id TEXT,
		monitored_job_ids TEXT, notification_method TEXT, embedding TEXT,
		created_at TIMESTAMP, updated_at TIMESTAMP
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE ` + entity.TableModuleInstances + ` (
		id TEXT PRIMARY KEY, module_class TEXT, agent_id TEXT, user_id TEXT,
		is_public INTEGER, status TEXT, description TEXT, dependencies TEXT,
		config TEXT, state TEXT, keywords TEXT, topic_hint TEXT,
		routing_embedding TEXT, last_polled_status TEXT, callback_processed INTEGER,
		created_at TIMESTAMP, last_used_at TIMESTAMP, completed_at TIMESTAMP
	)`)
	require.NoError(t, err)

	s := sqlstore.New(db, "sqlite")
	return entity.NewJobRepo(s), entity.NewInstanceRepo(s)
}

func newTestEngine(t *testing.T) (*Engine, *entity.Job, *entity.ModuleInstance) {
	t.Helper()
	jobs, instances := newEngineTestDeps(t)
	ctx := context.Background()

	inst, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob,
		AgentID:     "agent_1",
		UserID:      strPtr("user_1"),
		Status:      entity.InstanceInProgress,
	})
	require.NoError(t, err)

	job, err := jobs.Create(ctx, &entity.Job{
		InstanceID:    inst.InstanceID,
		AgentID:       "agent_1",
		UserID:        "user_1",
		JobType:       entity.JobOngoing,
		Title:         "ongoing probe",
		Status:        entity.JobRunning,
		TriggerConfig: entity.TriggerConfig{IntervalSeconds: 3600},
	})
	require.NoError(t, err)

	e := &Engine{
		jobs:      jobs,
		instances: instances,
		log:       slog.Default(),
	}
	return e, job, inst
}

func strPtr(s string) *string { return &s }

// TestApplyVerdict_IncrementsIterationOnOngoingTerminalRun guards against
// the regression where an ongoing job's final (terminating) run never
// incremented iteration_count.
func TestApplyVerdict_IncrementsIterationOnOngoingTerminalRun(t *testing.T) {
	e, job, inst := newTestEngine(t)
	ctx := context.Background()

	e.applyVerdict(ctx, job, inst, &InterpretResult{Status: entity.JobCompleted})

	updated, err := e.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.IterationCount)
	require.Equal(t, entity.JobCompleted, updated.Status)

	updatedInst, err := e.instances.Get(ctx, inst.InstanceID)
	require.NoError(t, err)
	require.Equal(t, entity.InstanceCompleted, updatedInst.Status)
}

// TestApplyVerdict_IncrementsIterationOnOngoingNonTerminalRun covers the
// steady-state (non-terminal) probe: iteration_count still increments.
func TestApplyVerdict_IncrementsIterationOnOngoingNonTerminalRun(t *testing.T) {
	e, job, inst := newTestEngine(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour)
	e.applyVerdict(ctx, job, inst, &InterpretResult{Status: entity.JobActive, NextRunTime: &next})

	updated, err := e.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.IterationCount)

	updatedInst, err := e.instances.Get(ctx, inst.InstanceID)
	require.NoError(t, err)
	require.Equal(t, entity.InstanceInProgress, updatedInst.Status) // left for the next run to refresh
}

// TestApplyVerdict_ScheduledJobIncrementsIteration guards the other half
// of the regression: scheduled jobs were never incremented at all.
func TestApplyVerdict_ScheduledJobIncrementsIteration(t *testing.T) {
	jobs, instances := newEngineTestDeps(t)
	ctx := context.Background()

	inst, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob,
		AgentID:     "agent_1",
		UserID:      strPtr("user_1"),
		Status:      entity.InstanceInProgress,
	})
	require.NoError(t, err)

	job, err := jobs.Create(ctx, &entity.Job{
		InstanceID:    inst.InstanceID,
		AgentID:       "agent_1",
		UserID:        "user_1",
		JobType:       entity.JobScheduled,
		Title:         "scheduled report",
		Status:        entity.JobRunning,
		TriggerConfig: entity.TriggerConfig{Cron: "0 9 * * *"},
	})
	require.NoError(t, err)

	e := &Engine{jobs: jobs, instances: instances, log: slog.Default()}
	next := time.Now().UTC().Add(24 * time.Hour)
	e.applyVerdict(ctx, job, inst, &InterpretResult{Status: entity.JobActive, NextRunTime: &next})

	updated, err := e.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.IterationCount)
}

// TestApplyVerdict_OneOffJobNeverIncrementsIteration: one_off jobs have
// no iteration concept.
func TestApplyVerdict_OneOffJobNeverIncrementsIteration(t *testing.T) {
	jobs, instances := newEngineTestDeps(t)
	ctx := context.Background()

	inst, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob,
		AgentID:     "agent_1",
		UserID:      strPtr("user_1"),
		Status:      entity.InstanceInProgress,
	})
	require.NoError(t, err)

	job, err := jobs.Create(ctx, &entity.Job{
		InstanceID: inst.InstanceID,
		AgentID:    "agent_1",
		UserID:     "user_1",
		JobType:    entity.JobOneOff,
		Title:      "one shot",
		Status:     entity.JobRunning,
	})
	require.NoError(t, err)

	e := &Engine{jobs: jobs, instances: instances, log: slog.Default()}
	e.applyVerdict(ctx, job, inst, &InterpretResult{Status: entity.JobCompleted})

	updated, err := e.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.IterationCount)
}
