package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
)

func TestDeriveTrigger_JobTypeTable(t *testing.T) {
	s := New(Deps{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("end_condition plus interval is ongoing, first probe now", func(t *testing.T) {
		jt, _, next, err := s.deriveTrigger(&decider.JobConfig{
			Title:           "watch inbox",
			IntervalSeconds: 3600,
			EndCondition:    "customer replies",
		}, false, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobOngoing, jt)
		require.NotNil(t, next)
		assert.Equal(t, now, *next)
	})

	t.Run("interval alone is scheduled, first run one interval out", func(t *testing.T) {
		jt, _, next, err := s.deriveTrigger(&decider.JobConfig{Title: "sync", IntervalSeconds: 600}, false, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobScheduled, jt)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(10*time.Minute), *next)
	})

	t.Run("cron is scheduled at the next fire time", func(t *testing.T) {
		jt, _, next, err := s.deriveTrigger(&decider.JobConfig{Title: "digest", Cron: "0 9 * * *"}, false, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobScheduled, jt)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("bad cron is a validation error", func(t *testing.T) {
		_, _, _, err := s.deriveTrigger(&decider.JobConfig{Title: "digest", Cron: "not a cron"}, false, now)
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("scheduled_at is one_off at that instant", func(t *testing.T) {
		at := "2026-03-02T09:00:00Z"
		jt, tc, next, err := s.deriveTrigger(&decider.JobConfig{Title: "report", ScheduledAt: &at}, false, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobOneOff, jt)
		require.NotNil(t, tc.RunAt)
		require.NotNil(t, next)
		assert.Equal(t, *tc.RunAt, *next)
	})

	t.Run("no trigger and no deps is one_off now", func(t *testing.T) {
		jt, _, next, err := s.deriveTrigger(&decider.JobConfig{Title: "once"}, false, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobOneOff, jt)
		require.NotNil(t, next)
		assert.Equal(t, now, *next)
	})

	t.Run("no trigger with deps leaves next_run_time unset", func(t *testing.T) {
		jt, _, next, err := s.deriveTrigger(&decider.JobConfig{Title: "after"}, true, now)
		require.NoError(t, err)
		assert.Equal(t, entity.JobOneOff, jt)
		assert.Nil(t, next)
	})
}

func TestProcessBatch_ValidatesBeforeTouchingStore(t *testing.T) {
	s := New(Deps{}) // nil repos: any store access would panic, so a
	// validation failure must return before persistence starts
	ctx := context.Background()

	t.Run("empty batch", func(t *testing.T) {
		_, err := s.ProcessBatch(ctx, nil, "agent_1", "user_1", "nar_1")
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("missing task_key", func(t *testing.T) {
		_, err := s.ProcessBatch(ctx, []BatchJobSpec{{JobConfig: decider.JobConfig{Title: "x"}}}, "agent_1", "user_1", "nar_1")
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("duplicate task_key", func(t *testing.T) {
		_, err := s.ProcessBatch(ctx, []BatchJobSpec{
			{TaskKey: "a", JobConfig: decider.JobConfig{Title: "x"}},
			{TaskKey: "a", JobConfig: decider.JobConfig{Title: "y"}},
		}, "agent_1", "user_1", "nar_1")
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("unknown depends_on is fatal", func(t *testing.T) {
		_, err := s.ProcessBatch(ctx, []BatchJobSpec{
			{TaskKey: "analyse", DependsOn: []string{"fetch"}, JobConfig: decider.JobConfig{Title: "analyse"}},
		}, "agent_1", "user_1", "nar_1")
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("dependency cycle is rejected", func(t *testing.T) {
		_, err := s.ProcessBatch(ctx, []BatchJobSpec{
			{TaskKey: "a", DependsOn: []string{"b"}, JobConfig: decider.JobConfig{Title: "a"}},
			{TaskKey: "b", DependsOn: []string{"a"}, JobConfig: decider.JobConfig{Title: "b"}},
		}, "agent_1", "user_1", "nar_1")
		require.Error(t, err)
	})
}
