// Package moduleservice implements ModuleService: the front
// door AgentRuntime calls once per turn to load the narrative's current
// instances, drive InstanceDecider, hand the plan to InstanceSync, and
// assemble the final active-instance set the turn executes against.
package moduleservice

import (
	"context"
	"sort"

	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/instance"
	"github.com/agentctx/platform/internal/moduleregistry"
	"github.com/agentctx/platform/internal/sync"
)

// Input is everything one load_modules call needs from AgentRuntime.
type Input struct {
	AgentID          string
	UserID           string
	NarrativeID      string
	InputContent     string
	NarrativeSummary string
	HistoryMarkdown  string
	AwarenessText    string
}

// LoadResult is ModuleService's return value.
type LoadResult struct {
	ActiveInstances   []*entity.ModuleInstance
	ExecutionType     decider.ExecutionPath
	Changes           string
	DirectTrigger     *decider.DirectTrigger
	RelationshipGraph map[string]any
	KeyToID           map[string]string
	RawInstances      []*entity.ModuleInstance
}

// Service wires InstanceFactory, InstanceDecider, and InstanceSync
// together.
type Service struct {
	factory   *instance.Factory
	decider   *decider.Decider
	syncer    *sync.Syncer
	registry  *moduleregistry.Registry
	instances *entity.InstanceRepo
	jobs      *entity.JobRepo
}

func New(factory *instance.Factory, dec *decider.Decider, syncer *sync.Syncer, registry *moduleregistry.Registry, instances *entity.InstanceRepo, jobs *entity.JobRepo) *Service {
	return &Service{factory: factory, decider: dec, syncer: syncer, registry: registry, instances: instances, jobs: jobs}
}

// LoadModules drives one user turn's planning: load current instances,
// decide, sync, and assemble the active module set.
func (s *Service) LoadModules(ctx context.Context, in Input) (*LoadResult, error) {
	current, err := s.factory.LoadInstancesForNarrative(ctx, in.AgentID, in.UserID, in.NarrativeID)
	if err != nil {
		return nil, err
	}
	capability, task := partition(current, s.registry)

	jobInfoMap, err := s.activeJobInfo(ctx, in.NarrativeID)
	if err != nil {
		return nil, err
	}

	plan, err := s.decider.Decide(ctx, decider.Input{
		UserText:         in.InputContent,
		TaskInstances:    task,
		CapabilityInfo:   describeCapabilities(capability),
		NarrativeSummary: in.NarrativeSummary,
		HistoryMarkdown:  in.HistoryMarkdown,
		AwarenessText:    in.AwarenessText,
		CurrentUserID:    in.UserID,
		JobInfoMap:       jobInfoMap,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.syncer.Process(ctx, plan, in.AgentID, in.UserID, in.NarrativeID)
	if err != nil {
		return nil, err
	}

	synced, err := s.materialize(ctx, result.KeyToID)
	if err != nil {
		return nil, err
	}

	allActive := append(append([]*entity.ModuleInstance{}, capability...), synced...)
	allActive = s.ensureJobModuleLoaded(allActive, in.AgentID)
	allActive = s.ensureAlwaysLoadModules(allActive, in.AgentID)

	return &LoadResult{
		ActiveInstances:   allActive,
		ExecutionType:     plan.ExecutionPath,
		Changes:           describeChanges(task, synced),
		DirectTrigger:     plan.DirectTrigger,
		RelationshipGraph: plan.RelationshipGraph,
		KeyToID:           result.KeyToID,
		RawInstances:      synced,
	}, nil
}

// partition splits instances into capability and task sets per their
// registered module Kind.
func partition(instances []*entity.ModuleInstance, reg *moduleregistry.Registry) (capability, task []*entity.ModuleInstance) {
	for _, inst := range instances {
		desc, ok := reg.Get(inst.ModuleClass)
		if ok && desc.Kind == moduleregistry.KindCapability {
			capability = append(capability, inst)
		} else {
			task = append(task, inst)
		}
	}
	return capability, task
}

// describeCapabilities renders the one-line-per-instance summary
// InstanceDecider's prompt embeds as capability_info.
func describeCapabilities(capability []*entity.ModuleInstance) string {
	var out string
	for _, inst := range capability {
		out += string(inst.ModuleClass) + ": " + inst.Description + "\n"
	}
	return out
}

// describeChanges renders a terse before/after diff for LoadResult.changes.
func describeChanges(before, after []*entity.ModuleInstance) string {
	beforeIDs := make(map[string]bool, len(before))
	for _, inst := range before {
		beforeIDs[inst.InstanceID] = true
	}
	var added int
	for _, inst := range after {
		if !beforeIDs[inst.InstanceID] {
			added++
		}
	}
	if added == 0 {
		return "no new instances"
	}
	return "added instances"
}

// activeJobInfo builds the decider's job_info_map input: every active
// JobModule instance of the narrative, resolved to its Job row.
func (s *Service) activeJobInfo(ctx context.Context, narrativeID string) (map[string]decider.JobInfo, error) {
	if narrativeID == "" {
		return nil, nil
	}
	active, err := s.instances.ActiveJobsOf(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decider.JobInfo, len(active))
	for _, inst := range active {
		job, err := s.jobs.GetByInstance(ctx, inst.InstanceID)
		if err != nil {
			continue
		}
		out[inst.InstanceID] = decider.JobInfo{
			RelatedEntityID: job.RelatedEntityID,
			JobType:         job.JobType,
			Title:           job.Title,
		}
	}
	return out, nil
}

// materialize resolves InstanceSync's key_to_id map back to full
// ModuleInstance rows, in stable key order.
func (s *Service) materialize(ctx context.Context, keyToID map[string]string) ([]*entity.ModuleInstance, error) {
	if len(keyToID) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(keyToID))
	for key := range keyToID {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, keyToID[key])
	}
	rows, err := s.instances.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.ModuleInstance, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// ensureJobModuleLoaded appends a synthetic, unpersisted JobModule
// instance if the turn has none, so job_create stays reachable from the
// agent loop's tool surface.
func (s *Service) ensureJobModuleLoaded(active []*entity.ModuleInstance, agentID string) []*entity.ModuleInstance {
	for _, inst := range active {
		if inst.ModuleClass == entity.ModuleJob {
			return active
		}
	}
	return append(active, &entity.ModuleInstance{
		InstanceID:  "synthetic_job",
		ModuleClass: entity.ModuleJob,
		AgentID:     agentID,
		IsPublic:    true,
		Status:      entity.InstanceActive,
		Description: "synthetic job module, no backing job yet",
	})
}

// ensureAlwaysLoadModules appends the fixed set of always-on synthetic
// instances.
func (s *Service) ensureAlwaysLoadModules(active []*entity.ModuleInstance, agentID string) []*entity.ModuleInstance {
	for _, d := range s.registry.AlwaysLoad() {
		found := false
		for _, inst := range active {
			if inst.ModuleClass == d.Class {
				found = true
				break
			}
		}
		if !found {
			active = append(active, &entity.ModuleInstance{
				InstanceID:  "synthetic_" + d.IDPrefix,
				ModuleClass: d.Class,
				AgentID:     agentID,
				IsPublic:    true,
				Status:      entity.InstanceActive,
				Description: d.Description,
			})
		}
	}
	return active
}
