package sync

import (
	"testing"

	"github.com/agentctx/platform/internal/decider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCycles_NoCycle(t *testing.T) {
	instances := []decider.InstanceDict{
		{TaskKey: "fetch_data"},
		{TaskKey: "analyse", DependsOn: []string{"fetch_data"}},
		{TaskKey: "notify", DependsOn: []string{"analyse"}},
	}
	require.NoError(t, detectCycles(instances))
}

func TestDetectCycles_DirectCycle(t *testing.T) {
	instances := []decider.InstanceDict{
		{TaskKey: "a", DependsOn: []string{"b"}},
		{TaskKey: "b", DependsOn: []string{"a"}},
	}
	err := detectCycles(instances)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDetectCycles_SelfDependency(t *testing.T) {
	instances := []decider.InstanceDict{
		{TaskKey: "a", DependsOn: []string{"a"}},
	}
	err := detectCycles(instances)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDetectCycles_DiamondIsNotACycle(t *testing.T) {
	instances := []decider.InstanceDict{
		{TaskKey: "root"},
		{TaskKey: "left", DependsOn: []string{"root"}},
		{TaskKey: "right", DependsOn: []string{"root"}},
		{TaskKey: "join", DependsOn: []string{"left", "right"}},
	}
	require.NoError(t, detectCycles(instances))
}
