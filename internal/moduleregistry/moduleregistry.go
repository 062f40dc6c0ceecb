// Package moduleregistry is the static map of module-class name to module
// metadata: the set InstanceDecider
// plans against and ModuleService resolves instances into.
package moduleregistry

import (
	"sort"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/registry"
)

// Kind distinguishes modules the planner can schedule work into
// ("task modules") from modules that only contribute ambient context
// ("capability modules"); the planner only sees task modules as
// schedulable, capability modules are contextual info.
type Kind string

const (
	KindTask       Kind = "task"
	KindCapability Kind = "capability"
)

// Descriptor is the static metadata InstanceDecider and ModuleService read
// for one module class.
type Descriptor struct {
	Class       entity.ModuleClass
	Kind        Kind
	AlwaysLoad  bool // loaded into every turn with no DB-backed instance, e.g. SkillModule
	IDPrefix    string
	Description string
}

// Registry is the module-class → Descriptor lookup. It is read-heavy and
// populated once at startup; the underlying name->item map is the shared
// generic registry.Base rather than a hand-rolled RWMutex map.
type Registry struct {
	base *registry.Base[Descriptor]
}

func New() *Registry {
	return &Registry{base: registry.New[Descriptor]()}
}

func (r *Registry) Register(d Descriptor) {
	// Descriptors are re-registered at startup in tests; overwrite rather
	// than surface registry.Base's already-registered error.
	_ = r.base.Remove(string(d.Class))
	_ = r.base.Register(string(d.Class), d)
}

func (r *Registry) Get(class entity.ModuleClass) (Descriptor, bool) {
	return r.base.Get(string(class))
}

// All returns every registered descriptor, sorted by class for
// deterministic prompt composition.
func (r *Registry) All() []Descriptor {
	out := r.base.List()
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// AlwaysLoad returns the descriptors ModuleService must inject into every
// turn regardless of planner output.
func (r *Registry) AlwaysLoad() []Descriptor {
	var out []Descriptor
	for _, d := range r.All() {
		if d.AlwaysLoad {
			out = append(out, d)
		}
	}
	return out
}

// TaskModules returns the subset of descriptors InstanceDecider is allowed
// to schedule work into.
func (r *Registry) TaskModules() []Descriptor {
	var out []Descriptor
	for _, d := range r.All() {
		if d.Kind == KindTask {
			out = append(out, d)
		}
	}
	return out
}

// Default builds the registry entry for every module class the platform
// ships.
func Default() *Registry {
	r := New()
	r.Register(Descriptor{Class: entity.ModuleChat, Kind: KindTask, IDPrefix: "chat", Description: "Conversational turn-taking with a single user within a narrative."})
	r.Register(Descriptor{Class: entity.ModuleJob, Kind: KindTask, IDPrefix: "job", Description: "Background task execution: one-off, scheduled, or ongoing."})
	r.Register(Descriptor{Class: entity.ModuleAwareness, Kind: KindCapability, IDPrefix: "aware", Description: "Agent's self-model and situational awareness, one public instance per agent."})
	r.Register(Descriptor{Class: entity.ModuleSocialNetwork, Kind: KindCapability, IDPrefix: "social", Description: "Agent's directory of known people/entities and relationship strength."})
	r.Register(Descriptor{Class: entity.ModuleBasicInfo, Kind: KindCapability, IDPrefix: "basic", Description: "Agent's static identity and configuration facts."})
	r.Register(Descriptor{Class: entity.ModuleGeminiRAG, Kind: KindCapability, IDPrefix: "rag", Description: "Agent's uploaded-file search store binding."})
	r.Register(Descriptor{Class: entity.ModuleSkill, Kind: KindCapability, AlwaysLoad: true, IDPrefix: "skill", Description: "Tool-use skill catalogue; has no DB-backed instance and is always present."})
	return r
}

// AgentLevelClasses are the four module classes InstanceFactory
// idempotently provisions per agent.
var AgentLevelClasses = []entity.ModuleClass{
	entity.ModuleAwareness,
	entity.ModuleSocialNetwork,
	entity.ModuleBasicInfo,
	entity.ModuleGeminiRAG,
}
