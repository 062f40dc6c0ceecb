// Package resolver implements DependencyResolver: pure graph
// logic over a narrative's module-instance dependency edges.
package resolver

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/entity"
)

// Resolver flips blocked instances to active once every dependency of
// theirs has reached a terminal status.
type Resolver struct {
	instances *entity.InstanceRepo
	jobs      *entity.JobRepo
}

func New(instances *entity.InstanceRepo, jobs *entity.JobRepo) *Resolver {
	return &Resolver{instances: instances, jobs: jobs}
}

// Activation is one instance the resolver flipped to active, returned so
// callers (InstancePoller) can log/emit without a second DB round trip.
type Activation struct {
	InstanceID string
}

// HandleCompletion scans narrativeID's blocked instances and activates
// every one whose dependencies are now all terminal. A failed
// dependency still counts as satisfying: it is the
// activated instance's responsibility to interpret a failed upstream
// result.
func (r *Resolver) HandleCompletion(ctx context.Context, narrativeID, completedInstanceID string, newStatus entity.InstanceStatus) ([]Activation, error) {
	blocked, err := r.instances.BlockedInNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	var activations []Activation
	for _, inst := range blocked {
		if !contains(inst.Dependencies, completedInstanceID) {
			continue
		}
		deps, err := r.instances.GetByIDs(ctx, inst.Dependencies)
		if err != nil {
			return nil, err
		}
		if !allTerminal(deps) {
			continue
		}
		if err := r.instances.Activate(ctx, inst.InstanceID); err != nil {
			return nil, err
		}
		if inst.ModuleClass == entity.ModuleJob {
			if job, jerr := r.jobs.GetByInstance(ctx, inst.InstanceID); jerr == nil && job != nil {
				now := time.Now().UTC()
				if uerr := r.jobs.Complete(ctx, job.JobID, entity.JobPending, "", &now); uerr != nil {
					return nil, uerr
				}
			}
		}
		activations = append(activations, Activation{InstanceID: inst.InstanceID})
	}
	return activations, nil
}

func allTerminal(instances []*entity.ModuleInstance) bool {
	for _, inst := range instances {
		if inst == nil || !entity.TerminalInstanceStatuses[inst.Status] {
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
