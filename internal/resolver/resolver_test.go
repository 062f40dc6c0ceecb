package resolver

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/store/sqlstore"
)

func newResolverTestDeps(t *testing.T) (*entity.InstanceRepo, *entity.JobRepo, *entity.LinkRepo) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ` + entity.TableModuleInstances + ` (
		id TEXT PRIMARY KEY, module_class TEXT, agent_id TEXT, user_id TEXT,
		is_public INTEGER, status TEXT, description TEXT, dependencies TEXT,
		config TEXT, state TEXT, keywords TEXT, topic_hint TEXT,
		routing_embedding TEXT, last_polled_status TEXT, callback_processed INTEGER,
		created_at TIMESTAMP, last_used_at TIMESTAMP, completed_at TIMESTAMP
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE ` + entity.TableInstanceLinks + ` (
		instance_id TEXT, narrative_id TEXT, link_type TEXT
	)`)
	require.NoError(t, err)

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

	s := sqlstore.New(db, "sqlite")
	return entity.NewInstanceRepo(s), entity.NewJobRepo(s), entity.NewLinkRepo(s)
}

func strp(s string) *string { return &s }

// A blocked instance activates only once every one of its dependencies
// has reached a terminal status.
func TestHandleCompletion_ActivatesBlockedWhenAllDepsTerminal(t *testing.T) {
	instances, jobs, links := newResolverTestDeps(t)
	r := New(instances, jobs)
	ctx := context.Background()

	fetchData, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"),
		Status: entity.InstanceCompleted,
	})
	require.NoError(t, err)

	analyse, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"),
		Status: entity.InstanceBlocked, Dependencies: []string{fetchData.InstanceID},
	})
	require.NoError(t, err)

	require.NoError(t, links.Create(ctx, &entity.InstanceLink{InstanceID: fetchData.InstanceID, NarrativeID: "nar_1", LinkType: entity.LinkActive}))
	require.NoError(t, links.Create(ctx, &entity.InstanceLink{InstanceID: analyse.InstanceID, NarrativeID: "nar_1", LinkType: entity.LinkActive}))

	_, err = jobs.Create(ctx, &entity.Job{
		InstanceID: analyse.InstanceID, AgentID: "agent_1", UserID: "user_1",
		JobType: entity.JobOneOff, Title: "analyse", Status: entity.JobPending,
	})
	require.NoError(t, err)

	activations, err := r.HandleCompletion(ctx, "nar_1", fetchData.InstanceID, entity.InstanceCompleted)
	require.NoError(t, err)
	require.Len(t, activations, 1)
	require.Equal(t, analyse.InstanceID, activations[0].InstanceID)

	updated, err := instances.Get(ctx, analyse.InstanceID)
	require.NoError(t, err)
	require.Equal(t, entity.InstanceActive, updated.Status)

	job, err := jobs.GetByInstance(ctx, analyse.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, job.NextRunTime)
}

// TestHandleCompletion_LeavesBlockedWhenOtherDepStillPending ensures a
// multi-dependency instance does not activate early.
func TestHandleCompletion_LeavesBlockedWhenOtherDepStillPending(t *testing.T) {
	instances, jobs, links := newResolverTestDeps(t)
	r := New(instances, jobs)
	ctx := context.Background()

	depA, err := instances.Create(ctx, &entity.ModuleInstance{ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"), Status: entity.InstanceCompleted})
	require.NoError(t, err)
	depB, err := instances.Create(ctx, &entity.ModuleInstance{ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"), Status: entity.InstanceActive})
	require.NoError(t, err)
	notify, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"),
		Status: entity.InstanceBlocked, Dependencies: []string{depA.InstanceID, depB.InstanceID},
	})
	require.NoError(t, err)

	for _, id := range []string{depA.InstanceID, depB.InstanceID, notify.InstanceID} {
		require.NoError(t, links.Create(ctx, &entity.InstanceLink{InstanceID: id, NarrativeID: "nar_1", LinkType: entity.LinkActive}))
	}

	activations, err := r.HandleCompletion(ctx, "nar_1", depA.InstanceID, entity.InstanceCompleted)
	require.NoError(t, err)
	require.Len(t, activations, 0)

	stillBlocked, err := instances.Get(ctx, notify.InstanceID)
	require.NoError(t, err)
	require.Equal(t, entity.InstanceBlocked, stillBlocked.Status)
}

// A failed dependency still counts as satisfying the wait.
func TestHandleCompletion_FailedDependencyStillUnblocks(t *testing.T) {
	instances, jobs, links := newResolverTestDeps(t)
	r := New(instances, jobs)
	ctx := context.Background()

	dep, err := instances.Create(ctx, &entity.ModuleInstance{ModuleClass: entity.ModuleJob, AgentID: "agent_1", UserID: strp("user_1"), Status: entity.InstanceFailed})
	require.NoError(t, err)
	dependent, err := instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleChat, AgentID: "agent_1", UserID: strp("user_1"),
		Status: entity.InstanceBlocked, Dependencies: []string{dep.InstanceID},
	})
	require.NoError(t, err)
	for _, id := range []string{dep.InstanceID, dependent.InstanceID} {
		require.NoError(t, links.Create(ctx, &entity.InstanceLink{InstanceID: id, NarrativeID: "nar_1", LinkType: entity.LinkActive}))
	}

	activations, err := r.HandleCompletion(ctx, "nar_1", dep.InstanceID, entity.InstanceFailed)
	require.NoError(t, err)
	require.Len(t, activations, 1)
}
