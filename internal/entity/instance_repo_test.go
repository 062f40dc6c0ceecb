package entity

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/store/sqlstore"
)

func newInstanceTestStore(t *testing.T) *InstanceRepo {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ` + TableModuleInstances + ` (
		id TEXT PRIMARY KEY,
		module_class TEXT,
		agent_id TEXT,
		user_id TEXT,
		is_public BOOLEAN,
		status TEXT,
		description TEXT,
		dependencies TEXT,
		config TEXT,
		state TEXT,
		keywords TEXT,
		topic_hint TEXT,
		routing_embedding TEXT,
		last_polled_status TEXT,
		callback_processed BOOLEAN,
		created_at TIMESTAMP,
		last_used_at TIMESTAMP,
		completed_at TIMESTAMP
	)`)
	require.NoError(t, err)

	return NewInstanceRepo(sqlstore.New(db, "sqlite"))
}

// The in_progress transition must mirror the status into
// last_polled_status, or the later completed/failed transition never
// matches the poller's work predicate and dependents stay blocked
// forever.
func TestSetStatus_ArmsPollerWorkPredicate(t *testing.T) {
	repo := newInstanceTestStore(t)
	ctx := context.Background()

	uid := "user_1"
	inst, err := repo.Create(ctx, &ModuleInstance{
		ModuleClass: ModuleJob,
		AgentID:     "agent_1",
		UserID:      &uid,
		Status:      InstanceActive,
		Description: "fetch the data",
	})
	require.NoError(t, err)

	require.NoError(t, repo.SetStatus(ctx, inst.InstanceID, InstanceInProgress))
	require.NoError(t, repo.SetStatus(ctx, inst.InstanceID, InstanceCompleted))

	work, err := repo.PendingPollWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Equal(t, inst.InstanceID, work[0].InstanceID)
	require.Equal(t, InstanceInProgress, work[0].LastPolledStatus)
	require.False(t, work[0].CallbackProcessed)

	// MarkPolled is the idempotency write: the instance leaves the work
	// set and stays out.
	require.NoError(t, repo.MarkPolled(ctx, inst.InstanceID, InstanceCompleted))
	work, err = repo.PendingPollWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 0)
}

// An instance that completes without ever entering in_progress (e.g. a
// chat-triggered hook verdict on an instance the poller already
// processed) is not re-enqueued.
func TestPendingPollWork_IgnoresNonInProgressTransitions(t *testing.T) {
	repo := newInstanceTestStore(t)
	ctx := context.Background()

	uid := "user_1"
	inst, err := repo.Create(ctx, &ModuleInstance{
		ModuleClass: ModuleJob,
		AgentID:     "agent_1",
		UserID:      &uid,
		Status:      InstanceActive,
		Description: "already swept",
	})
	require.NoError(t, err)

	require.NoError(t, repo.SetStatus(ctx, inst.InstanceID, InstanceCompleted))

	work, err := repo.PendingPollWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 0)
}
