// Package instance implements InstanceFactory: the allocator
// for agent-scoped and narrative-scoped module instances.
package instance

import (
	"context"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/moduleregistry"
	"github.com/agentctx/platform/internal/store"
)

// Factory allocates ModuleInstance rows and wires their narrative links.
type Factory struct {
	db        store.Store
	instances *entity.InstanceRepo
	links     *entity.LinkRepo
	registry  *moduleregistry.Registry
}

func NewFactory(db store.Store, instances *entity.InstanceRepo, links *entity.LinkRepo, registry *moduleregistry.Registry) *Factory {
	return &Factory{db: db, instances: instances, links: links, registry: registry}
}

// CreateAgentLevelInstances idempotently creates the four agent-scoped
// public instances (awareness, social-network, basic-info, rag). Existing
// instances of a class are left untouched; only missing classes are
// created.
func (f *Factory) CreateAgentLevelInstances(ctx context.Context, agentID string) ([]*entity.ModuleInstance, error) {
	existing, err := f.instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	have := make(map[entity.ModuleClass]bool, len(existing))
	for _, inst := range existing {
		have[inst.ModuleClass] = true
	}
	out := append([]*entity.ModuleInstance{}, existing...)
	for _, class := range moduleregistry.AgentLevelClasses {
		if have[class] {
			continue
		}
		desc, _ := f.registry.Get(class)
		inst, err := f.instances.Create(ctx, &entity.ModuleInstance{
			ModuleClass: class,
			AgentID:     agentID,
			IsPublic:    true,
			Status:      entity.InstanceActive,
			Description: desc.Description,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// CreateChatInstance allocates a chat_* instance bound to narrativeID via
// an active link.
func (f *Factory) CreateChatInstance(ctx context.Context, agentID, userID, narrativeID string) (*entity.ModuleInstance, error) {
	if narrativeID == "" {
		return nil, errs.Validation("instance factory: narrative_id is required for a chat instance")
	}
	uid := userID
	inst, err := f.instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleChat,
		AgentID:     agentID,
		UserID:      &uid,
		Status:      entity.InstanceActive,
	})
	if err != nil {
		return nil, err
	}
	if err := f.links.Create(ctx, &entity.InstanceLink{InstanceID: inst.InstanceID, NarrativeID: narrativeID, LinkType: entity.LinkActive}); err != nil {
		return nil, err
	}
	return inst, nil
}

// JobInfo is the InstanceSync-supplied description of the job a new
// job_* instance should materialize.
type JobInfo struct {
	Description  string
	Dependencies []string
	Status       entity.InstanceStatus
}

// CreateJobInstance allocates a job_* instance, optionally linked to
// narrativeID.
func (f *Factory) CreateJobInstance(ctx context.Context, agentID, userID string, info JobInfo, narrativeID string) (*entity.ModuleInstance, error) {
	status := info.Status
	if status == "" {
		status = entity.InstanceActive
	}
	uid := userID
	inst, err := f.instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass:  entity.ModuleJob,
		AgentID:      agentID,
		UserID:       &uid,
		Status:       status,
		Description:  info.Description,
		Dependencies: info.Dependencies,
	})
	if err != nil {
		return nil, err
	}
	if narrativeID != "" {
		if err := f.links.Create(ctx, &entity.InstanceLink{InstanceID: inst.InstanceID, NarrativeID: narrativeID, LinkType: entity.LinkActive}); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// LoadInstancesForNarrative returns the union of (a) every public
// instance of the agent and (b) every instance actively linked to
// narrativeID, excluding other users' chat instances.
func (f *Factory) LoadInstancesForNarrative(ctx context.Context, agentID, userID, narrativeID string) ([]*entity.ModuleInstance, error) {
	public, err := f.instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	linked, err := f.activeLinkedInstances(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(public)+len(linked))
	out := make([]*entity.ModuleInstance, 0, len(public)+len(linked))
	for _, inst := range append(public, linked...) {
		if inst == nil || seen[inst.InstanceID] {
			continue
		}
		if inst.ModuleClass == entity.ModuleChat && inst.UserID != nil && *inst.UserID != userID {
			continue
		}
		seen[inst.InstanceID] = true
		out = append(out, inst)
	}
	return out, nil
}

func (f *Factory) activeLinkedInstances(ctx context.Context, narrativeID string) ([]*entity.ModuleInstance, error) {
	links, err := f.links.ForNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		if l.LinkType == entity.LinkActive {
			ids = append(ids, l.InstanceID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return f.instances.GetByIDs(ctx, ids)
}
