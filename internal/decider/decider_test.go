package decider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/errs"
)

func TestValidatePlan(t *testing.T) {
	t.Run("direct_trigger path requires the trigger payload", func(t *testing.T) {
		err := validatePlan(&Plan{ExecutionPath: ExecutionDirectTrigger})
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("direct_trigger with empty active_instances is fine", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath: ExecutionDirectTrigger,
			DirectTrigger: &DirectTrigger{ToolName: "job_list", Arguments: map[string]any{}},
		})
		require.NoError(t, err)
	})

	t.Run("depends_on must reference a sibling task_key", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath: ExecutionAgentLoop,
			ActiveInstances: []InstanceDict{
				{TaskKey: "analyse", ModuleClass: "JobModule", DependsOn: []string{"fetch_data"},
					JobConfig: &JobConfig{Title: "analyse"}},
			},
		})
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("duplicate task_keys are rejected", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath: ExecutionAgentLoop,
			ActiveInstances: []InstanceDict{
				{TaskKey: "a", ModuleClass: "ChatModule"},
				{TaskKey: "a", ModuleClass: "ChatModule"},
			},
		})
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("job instance without job_config is rejected", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath:   ExecutionAgentLoop,
			ActiveInstances: []InstanceDict{{TaskKey: "j", ModuleClass: "JobModule"}},
		})
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("end_condition without interval is rejected", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath: ExecutionAgentLoop,
			ActiveInstances: []InstanceDict{
				{TaskKey: "j", ModuleClass: "JobModule",
					JobConfig: &JobConfig{Title: "probe", EndCondition: "order placed"}},
			},
		})
		assert.ErrorIs(t, err, errs.Validation(""))
	})

	t.Run("well-formed dependent batch passes", func(t *testing.T) {
		err := validatePlan(&Plan{
			ExecutionPath: ExecutionAgentLoop,
			ActiveInstances: []InstanceDict{
				{TaskKey: "fetch_data", ModuleClass: "JobModule", JobConfig: &JobConfig{Title: "fetch"}},
				{TaskKey: "analyse", ModuleClass: "JobModule", DependsOn: []string{"fetch_data"},
					JobConfig: &JobConfig{Title: "analyse"}},
			},
		})
		require.NoError(t, err)
	})
}
