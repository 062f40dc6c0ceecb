package entity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/store"
	"github.com/agentctx/platform/internal/store/sqlstore"
)

func newJobTestStore(t *testing.T) *JobRepo {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ` + TableJobs + ` (
		id TEXT PRIMARY KEY,
		instance_id TEXT,
		agent_id TEXT,
		user_id TEXT,
		job_type TEXT,
		title TEXT,
		description TEXT,
		payload TEXT,
		trigger_config TEXT,
		status TEXT,
		process TEXT,
		last_run_time TIMESTAMP,
		next_run_time TIMESTAMP,
		last_error TEXT,
		iteration_count INTEGER,
		related_entity_id TEXT,
		narrative_id TEXT,
		monitored_job_ids TEXT,
		notification_method TEXT,
		embedding TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	require.NoError(t, err)

	return NewJobRepo(sqlstore.New(db, "sqlite"))
}

// TestDueForRun_NilNextRunTimeIsNeverDue guards against the regression
// where a one_off job created with unmet dependencies (next_run_time
// left nil until its dependencies resolve) was treated as immediately due and
// claimed out of topological order.
func TestDueForRun_NilNextRunTimeIsNeverDue(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	blocked, err := repo.Create(ctx, &Job{
		InstanceID: "inst_blocked",
		AgentID:    "agent_1",
		UserID:     "user_1",
		JobType:    JobOneOff,
		Title:      "blocked job",
		Status:     JobPending,
		// NextRunTime intentionally nil.
	})
	require.NoError(t, err)

	due := time.Now().UTC().Add(-time.Hour)
	ready, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_ready",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "ready job",
		Status:      JobPending,
		NextRunTime: &due,
	})
	require.NoError(t, err)

	results, err := repo.DueForRun(ctx, time.Now().UTC())
	require.NoError(t, err)

	var ids []string
	for _, j := range results {
		ids = append(ids, j.JobID)
	}
	require.Contains(t, ids, ready.JobID)
	require.NotContains(t, ids, blocked.JobID)
}

func TestDueForRun_FutureNextRunTimeIsNotDue(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	_, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_future",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "future job",
		Status:      JobPending,
		NextRunTime: &future,
	})
	require.NoError(t, err)

	results, err := repo.DueForRun(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, results, 0)
}

func TestClaim_OnlyOneWorkerWins(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	job, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_race",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "race job",
		Status:      JobPending,
		NextRunTime: &now,
	})
	require.NoError(t, err)

	first, err := repo.Claim(ctx, job.JobID)
	require.NoError(t, err)
	require.True(t, first)

	second, err := repo.Claim(ctx, job.JobID)
	require.NoError(t, err)
	require.False(t, second)
}

func TestIncrementIteration(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, &Job{
		InstanceID:    "inst_iter",
		AgentID:       "agent_1",
		UserID:        "user_1",
		JobType:       JobScheduled,
		Title:         "iter job",
		Status:        JobActive,
		TriggerConfig: TriggerConfig{Cron: "0 * * * *"},
	})
	require.NoError(t, err)

	n, err := repo.IncrementIteration(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = repo.IncrementIteration(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

// Recovery must reap only running jobs whose last update is older than
// the cutoff: a worker that is legitimately mid-run keeps its claim.
func TestRecoverStuck_ResetsOnlyStaleRunningJobs(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	due := now.Add(-time.Hour)
	stale, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_stale",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "stale job",
		Status:      JobPending,
		NextRunTime: &due,
	})
	require.NoError(t, err)
	fresh, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_fresh",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "fresh job",
		Status:      JobPending,
		NextRunTime: &due,
	})
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, stale.JobID)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = repo.Claim(ctx, fresh.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	// age the stale claim past the timeout
	_, err = repo.db.Update(ctx, TableJobs,
		store.Filters{"id": stale.JobID},
		store.Row{"updated_at": now.Add(-45 * time.Minute)},
	)
	require.NoError(t, err)

	n, err := repo.RecoverStuck(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	recovered, err := repo.Get(ctx, stale.JobID)
	require.NoError(t, err)
	require.Equal(t, JobPending, recovered.Status)

	held, err := repo.Get(ctx, fresh.JobID)
	require.NoError(t, err)
	require.Equal(t, JobRunning, held.Status)
}

// Startup recovery passes a cutoff of now: every running job, however
// recently claimed, belongs to a dead process and is reset.
func TestRecoverStuck_NowCutoffReapsEverything(t *testing.T) {
	repo := newJobTestStore(t)
	ctx := context.Background()

	due := time.Now().UTC().Add(-time.Hour)
	j, err := repo.Create(ctx, &Job{
		InstanceID:  "inst_orphan",
		AgentID:     "agent_1",
		UserID:      "user_1",
		JobType:     JobOneOff,
		Title:       "orphaned job",
		Status:      JobPending,
		NextRunTime: &due,
	})
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx, j.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := repo.RecoverStuck(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	recovered, err := repo.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, JobPending, recovered.Status)
}
