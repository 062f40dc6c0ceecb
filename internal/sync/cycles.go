package sync

import (
	"strings"

	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/errs"
)

// detectCycles runs a DFS with an explicit
// recursion stack over the task_key -> depends_on graph. Unresolved
// depends_on references are ignored here (validatePlan already rejects
// them before InstanceSync ever runs).
func detectCycles(instances []decider.InstanceDict) error {
	graph := make(map[string][]string, len(instances))
	for _, inst := range instances {
		graph[inst.TaskKey] = inst.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph))
	var path []string

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			path = append(path, key)
			return errs.Validation("sync: dependency cycle detected: " + strings.Join(path, " -> "))
		}
		state[key] = visiting
		path = append(path, key)
		for _, dep := range graph[key] {
			if _, ok := graph[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[key] = done
		return nil
	}

	for _, inst := range instances {
		if state[inst.TaskKey] == unvisited {
			if err := visit(inst.TaskKey); err != nil {
				return err
			}
		}
	}
	return nil
}
