// Package sync implements InstanceSync: converts the
// decider's plan into a concrete, persisted instance graph — allocating
// ids, resolving dependencies, detecting cycles, assigning initial
// status, suppressing duplicate jobs, and materializing Job rows.
package sync

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/embedding"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
	"github.com/robfig/cron/v3"
)

// Deps bundles the EntityRepo family Syncer needs, plus the raw Store
// for the instance+job transaction scope.
type Deps struct {
	DB         store.Store
	Instances  *entity.InstanceRepo
	Jobs       *entity.JobRepo
	Links      *entity.LinkRepo
	Social     *entity.SocialRepo
	Narratives *entity.NarrativeRepo
}

// Syncer persists a decider Plan.
type Syncer struct {
	deps       Deps
	cronParser cron.Parser
	embedder   embedding.Embedder
}

func New(deps Deps) *Syncer {
	return &Syncer{
		deps:       deps,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		embedder:   embedding.NewHashing(),
	}
}

// WithEmbedder overrides the default hashing embedder, e.g. with a real
// provider-backed Embedder. Additive: existing callers of New are
// unaffected.
func (s *Syncer) WithEmbedder(e embedding.Embedder) *Syncer {
	s.embedder = e
	return s
}

// Result is what Process hands back to ModuleService: the task_key→id
// map (for the execution-path direct_trigger/agent_loop caller) plus any
// task_keys the plan declared but were suppressed as duplicates.
type Result struct {
	KeyToID    map[string]string
	Suppressed map[string]string // task_key -> existing job_id it duplicates
}

// BatchJobSpec is one entry of a direct batch-creation request: a job
// plus its dependencies, keyed by task_key exactly like a planned
// instance.
type BatchJobSpec struct {
	TaskKey   string            `json:"task_key" binding:"required"`
	DependsOn []string          `json:"depends_on"`
	JobConfig decider.JobConfig `json:"job_config"`
}

// ProcessBatch materializes a caller-supplied dependency graph of jobs
// without a planning step — the API layer's batch-creation path. Every
// entry becomes a JobModule instance; cycle detection, duplicate
// suppression, and side effects run exactly as for a planned batch.
// A depends_on referencing an absent task_key is fatal here, as it is on
// the planner path, where validatePlan rejects it.
func (s *Syncer) ProcessBatch(ctx context.Context, specs []BatchJobSpec, agentID, userID, narrativeID string) (*Result, error) {
	if len(specs) == 0 {
		return nil, errs.Validation("sync: batch is empty")
	}
	keys := make(map[string]bool, len(specs))
	for _, sp := range specs {
		if sp.TaskKey == "" {
			return nil, errs.Validation("sync: batch entry missing task_key")
		}
		if keys[sp.TaskKey] {
			return nil, errs.Validation("sync: duplicate task_key " + sp.TaskKey)
		}
		keys[sp.TaskKey] = true
	}
	instances := make([]decider.InstanceDict, len(specs))
	for i, sp := range specs {
		for _, dep := range sp.DependsOn {
			if !keys[dep] {
				return nil, errs.Validation("sync: " + sp.TaskKey + " depends on unknown task_key " + dep)
			}
		}
		jc := sp.JobConfig
		instances[i] = decider.InstanceDict{
			TaskKey:     sp.TaskKey,
			ModuleClass: entity.ModuleJob,
			Description: jc.Title,
			DependsOn:   sp.DependsOn,
			JobConfig:   &jc,
		}
	}
	return s.Process(ctx, &decider.Plan{ExecutionPath: decider.ExecutionAgentLoop, ActiveInstances: instances}, agentID, userID, narrativeID)
}

// Process is the pure-transformation-then-persistence entry point.
func (s *Syncer) Process(ctx context.Context, plan *decider.Plan, agentID, userID, narrativeID string) (*Result, error) {
	if err := detectCycles(plan.ActiveInstances); err != nil {
		return nil, err
	}

	keyToID := s.buildKeyToIDMap(plan.ActiveInstances)
	s.resolveDependencies(plan.ActiveInstances, keyToID)
	assignInitialStatus(plan.ActiveInstances)

	existingJobs, err := s.activeJobTitles(ctx, narrativeID)
	if err != nil {
		return nil, err
	}

	suppressed := make(map[string]string)
	now := time.Now().UTC()

	for i := range plan.ActiveInstances {
		inst := &plan.ActiveInstances[i]
		if inst.ModuleClass != entity.ModuleJob {
			continue
		}
		if inst.JobConfig == nil {
			return nil, errs.Validation("sync: " + inst.TaskKey + " is JobModule but has no job_config")
		}
		if existingID, dup := findDuplicate(inst.JobConfig.Title, existingJobs); dup {
			suppressed[inst.TaskKey] = existingID
			keyToID[inst.TaskKey] = existingID
			continue
		}

		if err := s.materializeJob(ctx, inst, keyToID[inst.TaskKey], agentID, userID, narrativeID, now); err != nil {
			return nil, err
		}
	}

	// Persist non-job (capability/chat) instances that were newly
	// allocated by this plan (job instances are persisted inside
	// materializeJob alongside their Job row).
	for _, inst := range plan.ActiveInstances {
		if inst.ModuleClass == entity.ModuleJob {
			continue
		}
		if _, dup := suppressed[inst.TaskKey]; dup {
			continue
		}
		if err := s.persistNonJobInstance(ctx, inst, keyToID[inst.TaskKey], agentID, userID, narrativeID); err != nil {
			return nil, err
		}
	}

	return &Result{KeyToID: keyToID, Suppressed: suppressed}, nil
}

// buildKeyToIDMap implements step 1: keep a well-formed existing id,
// else allocate a fresh prefixed one.
func (s *Syncer) buildKeyToIDMap(instances []decider.InstanceDict) map[string]string {
	out := make(map[string]string, len(instances))
	for _, inst := range instances {
		if inst.InstanceID != "" && idgen.Valid(inst.InstanceID) {
			out[inst.TaskKey] = inst.InstanceID
			continue
		}
		out[inst.TaskKey] = idgen.New(prefixFor(inst.ModuleClass))
	}
	return out
}

func prefixFor(mc entity.ModuleClass) string {
	switch mc {
	case entity.ModuleChat:
		return idgen.PrefixInstanceChat
	case entity.ModuleJob:
		return idgen.PrefixInstanceJob
	case entity.ModuleAwareness:
		return idgen.PrefixAwareness
	case entity.ModuleSocialNetwork:
		return idgen.PrefixSocialNetwork
	case entity.ModuleBasicInfo:
		return idgen.PrefixBasicInfo
	case entity.ModuleGeminiRAG:
		return idgen.PrefixRAG
	case entity.ModuleSkill:
		return idgen.PrefixSkill
	default:
		return "inst"
	}
}

// resolveDependencies implements step 2: replace each task_key in
// depends_on with its mapped instance_id. Unresolved keys are dropped
// without a warning.
func (s *Syncer) resolveDependencies(instances []decider.InstanceDict, keyToID map[string]string) {
	for i := range instances {
		inst := &instances[i]
		deps := make([]string, 0, len(inst.DependsOn))
		for _, key := range inst.DependsOn {
			if id, ok := keyToID[key]; ok {
				deps = append(deps, id)
			}
		}
		inst.Dependencies = deps
	}
}

// assignInitialStatus implements step 4.
func assignInitialStatus(instances []decider.InstanceDict) {
	inBatch := make(map[string]bool, len(instances))
	for _, inst := range instances {
		inBatch[inst.TaskKey] = true
	}
	for i := range instances {
		inst := &instances[i]
		if inst.ModuleClass != entity.ModuleJob {
			inst.DependsOn = nil
			inst.Dependencies = nil
			inst.Status = entity.InstanceActive
			continue
		}
		hasBatchDep := false
		for _, dep := range inst.DependsOn {
			if inBatch[dep] {
				hasBatchDep = true
				break
			}
		}
		if hasBatchDep {
			inst.Status = entity.InstanceBlocked
		} else {
			inst.Status = entity.InstanceActive
		}
	}
}

// activeJobTitles returns job_id -> job title for every currently
// active job of narrativeID, the candidate set for duplicate suppression.
func (s *Syncer) activeJobTitles(ctx context.Context, narrativeID string) (map[string]string, error) {
	if narrativeID == "" {
		return nil, nil
	}
	active, err := s.deps.Instances.ActiveJobsOf(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(active))
	for _, inst := range active {
		job, err := s.deps.Jobs.GetByInstance(ctx, inst.InstanceID)
		if err != nil {
			continue
		}
		out[job.JobID] = job.Title
	}
	return out, nil
}

func findDuplicate(title string, existing map[string]string) (jobID string, found bool) {
	for id, existingTitle := range existing {
		if similarTitles(title, existingTitle) {
			return id, true
		}
	}
	return "", false
}

// materializeJob derives the job_type, computes the initial
// next_run_time, inserts the ModuleInstance and Job within a transaction,
// then applies social-network and narrative side effects.
func (s *Syncer) materializeJob(ctx context.Context, inst *decider.InstanceDict, instanceID, agentID, userID, narrativeID string, now time.Time) error {
	jc := inst.JobConfig
	jobType, trigger, nextRun, err := s.deriveTrigger(jc, len(inst.Dependencies) > 0, now)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, jc.Title+" "+inst.Description+" "+jc.Payload)
	if err != nil {
		// An unreachable embedding provider must not block scheduling a
		// job; routing/duplicate-candidate lookups degrade to the
		// Jaccard/bigram heuristic instead.
		vec = nil
	}

	uid := userID
	job := &entity.Job{
		InstanceID:         instanceID,
		AgentID:            agentID,
		UserID:             userID,
		JobType:            jobType,
		Title:              jc.Title,
		Description:        inst.Description,
		Payload:            jc.Payload,
		TriggerConfig:      trigger,
		Status:             entity.JobPending,
		NextRunTime:        nextRun,
		RelatedEntityID:    jc.RelatedEntityID,
		NarrativeID:        narrativeID,
		NotificationMethod: entity.NotifyInbox,
		Embedding:          vec,
	}

	// The instance and its 1:1 job land together or not at all; a crash
	// between the two writes must not leave an instance with no job row.
	err = s.deps.DB.Transaction(ctx, func(tx store.Tx) error {
		if _, err := s.deps.Instances.WithStore(tx).Create(ctx, &entity.ModuleInstance{
			InstanceID:       instanceID,
			ModuleClass:      entity.ModuleJob,
			AgentID:          agentID,
			UserID:           &uid,
			Status:           inst.Status,
			Description:      inst.Description,
			Dependencies:     inst.Dependencies,
			RoutingEmbedding: vec,
		}); err != nil {
			return err
		}
		_, err := s.deps.Jobs.WithStore(tx).Create(ctx, job)
		return err
	})
	if err != nil {
		return err
	}

	if narrativeID != "" {
		if err := s.deps.Links.Create(ctx, &entity.InstanceLink{InstanceID: instanceID, NarrativeID: narrativeID, LinkType: entity.LinkActive}); err != nil {
			return err
		}
	}

	return s.applySideEffects(ctx, job, agentID, userID, narrativeID)
}

// deriveTrigger maps a JobConfig to its job_type, trigger config, and
// initial next_run_time.
func (s *Syncer) deriveTrigger(jc *decider.JobConfig, hasDeps bool, now time.Time) (entity.JobType, entity.TriggerConfig, *time.Time, error) {
	tc := entity.TriggerConfig{
		Cron:            jc.Cron,
		IntervalSeconds: jc.IntervalSeconds,
		EndCondition:    jc.EndCondition,
		MaxIterations:   jc.MaxIterations,
	}

	switch {
	case jc.EndCondition != "" && jc.IntervalSeconds > 0:
		t := now
		return entity.JobOngoing, tc, &t, nil

	case jc.Cron != "" || jc.IntervalSeconds > 0:
		var next time.Time
		if jc.Cron != "" {
			sched, err := s.cronParser.Parse(jc.Cron)
			if err != nil {
				return "", tc, nil, errs.Validation("sync: invalid cron expression: " + err.Error())
			}
			next = sched.Next(now)
		} else {
			next = now.Add(time.Duration(jc.IntervalSeconds) * time.Second)
		}
		return entity.JobScheduled, tc, &next, nil

	case jc.ScheduledAt != nil:
		t, err := time.Parse(time.RFC3339, *jc.ScheduledAt)
		if err != nil {
			return "", tc, nil, errs.Validation("sync: invalid scheduled_at: " + err.Error())
		}
		tc.RunAt = &t
		return entity.JobOneOff, tc, &t, nil

	default:
		if hasDeps {
			return entity.JobOneOff, tc, nil, nil
		}
		t := now
		return entity.JobOneOff, tc, &t, nil
	}
}

// applySideEffects records the new job on its related social entity and
// injects the entity as a narrative participant when it differs from the
// requesting user.
func (s *Syncer) applySideEffects(ctx context.Context, job *entity.Job, agentID, userID, narrativeID string) error {
	if job.RelatedEntityID == "" {
		return nil
	}

	socialInstanceID, err := s.ensureSocialNetworkInstance(ctx, agentID)
	if err != nil {
		return err
	}
	existing, err := s.deps.Social.ForInstance(ctx, socialInstanceID)
	if err != nil {
		return err
	}
	var entityRow *entity.SocialEntity
	for _, e := range existing {
		if e.EntityID == job.RelatedEntityID || e.EntityName == job.RelatedEntityID {
			entityRow = e
			break
		}
	}
	if entityRow == nil {
		entityRow = &entity.SocialEntity{InstanceID: socialInstanceID, EntityName: job.RelatedEntityID, EntityType: "user"}
	}
	entityRow.RelatedJobIDs = append(entityRow.RelatedJobIDs, job.JobID)
	if _, err := s.deps.Social.Upsert(ctx, entityRow); err != nil {
		return err
	}

	if job.RelatedEntityID != userID && narrativeID != "" {
		if err := s.deps.Narratives.AddParticipant(ctx, narrativeID, job.RelatedEntityID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) ensureSocialNetworkInstance(ctx context.Context, agentID string) (string, error) {
	public, err := s.deps.Instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	for _, inst := range public {
		if inst.ModuleClass == entity.ModuleSocialNetwork {
			return inst.InstanceID, nil
		}
	}
	inst, err := s.deps.Instances.Create(ctx, &entity.ModuleInstance{
		ModuleClass: entity.ModuleSocialNetwork,
		AgentID:     agentID,
		IsPublic:    true,
		Status:      entity.InstanceActive,
	})
	if err != nil {
		return "", err
	}
	return inst.InstanceID, nil
}

// persistNonJobInstance materializes a capability/chat instance that
// carries no job_config.
func (s *Syncer) persistNonJobInstance(ctx context.Context, inst decider.InstanceDict, instanceID, agentID, userID, narrativeID string) error {
	isPublic := inst.ModuleClass != entity.ModuleChat
	var uidPtr *string
	if !isPublic {
		uidPtr = &userID
	}
	_, err := s.deps.Instances.Create(ctx, &entity.ModuleInstance{
		InstanceID:  instanceID,
		ModuleClass: inst.ModuleClass,
		AgentID:     agentID,
		UserID:      uidPtr,
		IsPublic:    isPublic,
		Status:      inst.Status,
		Description: inst.Description,
	})
	if err != nil {
		return err
	}
	if narrativeID != "" && inst.ModuleClass == entity.ModuleChat {
		return s.deps.Links.Create(ctx, &entity.InstanceLink{InstanceID: instanceID, NarrativeID: narrativeID, LinkType: entity.LinkActive})
	}
	return nil
}
