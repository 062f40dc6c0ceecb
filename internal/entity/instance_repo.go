package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
	"github.com/agentctx/platform/internal/vectorstore"
)

// InstanceRepo is the typed accessor for ModuleInstance rows, enforcing
// the write-boundary invariants (public instances carry no user_id,
// blocked instances declare at least one dependency).
type InstanceRepo struct {
	db    store.Store
	index vectorstore.Index // optional accelerator over routing_embedding; nil falls back to db.SemanticSearch
}

func NewInstanceRepo(db store.Store) *InstanceRepo { return &InstanceRepo{db: db} }

// WithVectorIndex attaches a vectorstore.Index that RoutingSemanticSearch
// and Create consult/populate in addition to the SQL cosine scan.
// Additive: existing callers of NewInstanceRepo are unaffected.
func (r *InstanceRepo) WithVectorIndex(idx vectorstore.Index) *InstanceRepo {
	r.index = idx
	return r
}

// WithStore returns a copy of the repo bound to s, used to run writes
// inside an existing transaction scope (s is typically a store.Tx).
func (r *InstanceRepo) WithStore(s store.Store) *InstanceRepo {
	c := *r
	c.db = s
	return &c
}

func (r *InstanceRepo) Create(ctx context.Context, inst *ModuleInstance) (*ModuleInstance, error) {
	if err := validateInstance(inst); err != nil {
		return nil, err
	}
	if inst.InstanceID == "" {
		inst.InstanceID = idgen.New(prefixForClass(inst.ModuleClass))
	}
	now := time.Now().UTC()
	inst.CreatedAt, inst.LastUsedAt = now, now
	if inst.LastPolledStatus == "" {
		inst.LastPolledStatus = inst.Status
	}
	_, err := r.db.Insert(ctx, TableModuleInstances, instanceToRow(inst))
	if err != nil {
		return nil, errs.Internal("instance: insert failed", err)
	}
	r.indexUpsert(ctx, inst)
	return inst, nil
}

func (r *InstanceRepo) indexUpsert(ctx context.Context, inst *ModuleInstance) {
	if r.index == nil || len(inst.RoutingEmbedding) == 0 {
		return
	}
	_ = r.index.Upsert(ctx, vectorstore.CollectionRoutingEmbedding, inst.InstanceID, inst.RoutingEmbedding)
}

// RoutingSemanticSearch ranks agentID's public instances by routing
// embedding similarity to queryVec, the primitive behind Decider's
// keyword-miss instance-routing fallback. When a
// vectorstore.Index is configured it resolves candidate ids first and
// hydrates rows by id; with no index configured it falls back to the SQL
// cosine scan directly.
func (r *InstanceRepo) RoutingSemanticSearch(ctx context.Context, agentID string, queryVec []float32, limit int, minSimilarity float64) ([]*ModuleInstance, error) {
	if r.index != nil {
		matches, err := r.index.Search(ctx, vectorstore.CollectionRoutingEmbedding, queryVec, limit)
		if err == nil && len(matches) > 0 {
			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.ID
			}
			rows, err := r.db.GetByIDs(ctx, TableModuleInstances, "id", ids)
			if err == nil {
				out := make([]*ModuleInstance, 0, len(rows))
				for i, row := range rows {
					if row == nil || matches[i].Score < minSimilarity {
						continue
					}
					inst := rowToInstance(row)
					if inst.AgentID == agentID && inst.IsPublic {
						out = append(out, inst)
					}
				}
				return out, nil
			}
		}
	}
	scored, err := r.db.SemanticSearch(ctx, TableModuleInstances, "routing_embedding", queryVec, store.Filters{"agent_id": agentID, "is_public": true}, limit, minSimilarity)
	if err != nil {
		return nil, errs.Internal("instance: routing semantic search failed", err)
	}
	out := make([]*ModuleInstance, len(scored))
	for i, s := range scored {
		out[i] = rowToInstance(s.Row)
	}
	return out, nil
}

func validateInstance(inst *ModuleInstance) error {
	if inst.IsPublic && inst.UserID != nil {
		return errs.Validation("instance: is_public instances must have user_id = nil")
	}
	if inst.Status == InstanceBlocked && len(inst.Dependencies) == 0 {
		return errs.Validation("instance: blocked instances must declare at least one dependency")
	}
	return nil
}

func prefixForClass(mc ModuleClass) string {
	switch mc {
	case ModuleChat:
		return idgen.PrefixInstanceChat
	case ModuleJob:
		return idgen.PrefixInstanceJob
	case ModuleAwareness:
		return idgen.PrefixAwareness
	case ModuleSocialNetwork:
		return idgen.PrefixSocialNetwork
	case ModuleBasicInfo:
		return idgen.PrefixBasicInfo
	case ModuleGeminiRAG:
		return idgen.PrefixRAG
	case ModuleSkill:
		return idgen.PrefixSkill
	default:
		return "inst"
	}
}

func (r *InstanceRepo) Get(ctx context.Context, instanceID string) (*ModuleInstance, error) {
	row, err := r.db.GetOne(ctx, TableModuleInstances, store.Filters{"id": instanceID})
	if err != nil {
		return nil, errs.Internal("instance: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("module instance")
	}
	return rowToInstance(row), nil
}

func (r *InstanceRepo) GetByIDs(ctx context.Context, ids []string) ([]*ModuleInstance, error) {
	rows, err := r.db.GetByIDs(ctx, TableModuleInstances, "id", ids)
	if err != nil {
		return nil, errs.Internal("instance: batch get failed", err)
	}
	out := make([]*ModuleInstance, len(rows))
	for i, row := range rows {
		if row == nil {
			continue
		}
		out[i] = rowToInstance(row)
	}
	return out, nil
}

// PublicForAgent returns every public (agent-scoped) instance of agentID.
func (r *InstanceRepo) PublicForAgent(ctx context.Context, agentID string) ([]*ModuleInstance, error) {
	rows, err := r.db.Get(ctx, TableModuleInstances, store.Filters{"agent_id": agentID, "is_public": true}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("instance: list public failed", err)
	}
	return rowsToInstances(rows), nil
}

// ForNarrative returns instances linked (any link_type) to narrativeID.
func (r *InstanceRepo) ForNarrative(ctx context.Context, narrativeID string) ([]*ModuleInstance, error) {
	links, err := r.db.Get(ctx, TableInstanceLinks, store.Filters{"narrative_id": narrativeID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("instance: list links failed", err)
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, stringOr(l, "instance_id"))
	}
	instances, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*ModuleInstance, 0, len(instances))
	for _, inst := range instances {
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out, nil
}

// ActiveJobsOf returns active-status JobModule instances linked to
// narrativeID, used to build the decider's job_info_map.
func (r *InstanceRepo) ActiveJobsOf(ctx context.Context, narrativeID string) ([]*ModuleInstance, error) {
	all, err := r.ForNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	var out []*ModuleInstance
	for _, inst := range all {
		if inst.ModuleClass == ModuleJob && inst.Status == InstanceActive {
			out = append(out, inst)
		}
	}
	return out, nil
}

// ChatInstancesOfUser returns every ChatModule instance belonging to
// userID, the candidate set ChatModule's short-term memory track draws
// from.
func (r *InstanceRepo) ChatInstancesOfUser(ctx context.Context, userID string) ([]*ModuleInstance, error) {
	rows, err := r.db.Get(ctx, TableModuleInstances, store.Filters{"module_class": string(ModuleChat), "user_id": userID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("instance: list chat instances of user failed", err)
	}
	return rowsToInstances(rows), nil
}

// AppendMemory appends one {role, content} pair to an instance's
// per-instance JSON memory (ModuleInstance.State["memory"]), ChatModule's
// post-event persistence step.
func (r *InstanceRepo) AppendMemory(ctx context.Context, instanceID, role, content string) error {
	inst, err := r.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	var memory []map[string]any
	if raw, ok := inst.State["memory"]; ok {
		if entries, ok := raw.([]any); ok {
			for _, e := range entries {
				if m, ok := e.(map[string]any); ok {
					memory = append(memory, m)
				}
			}
		}
	}
	memory = append(memory, map[string]any{"role": role, "content": content, "timestamp": time.Now().UTC()})
	if inst.State == nil {
		inst.State = map[string]any{}
	}
	inst.State["memory"] = memory
	_, err = r.db.Update(ctx, TableModuleInstances, store.Filters{"id": instanceID}, store.Row{
		"state":        encodeJSON(inst.State),
		"last_used_at": time.Now().UTC(),
	})
	if err != nil {
		return errs.Internal("instance: append memory failed", err)
	}
	return nil
}

// SetStatus transitions an instance's status, maintaining callback
// bookkeeping: entering in_progress mirrors the status into
// last_polled_status and re-arms callback_processed, so that the later
// completed/failed transition (which leaves last_polled_status alone)
// matches InstancePoller's work predicate.
func (r *InstanceRepo) SetStatus(ctx context.Context, instanceID string, status InstanceStatus) error {
	data := store.Row{"status": string(status), "last_used_at": time.Now().UTC()}
	if status == InstanceInProgress {
		data["last_polled_status"] = string(InstanceInProgress)
		data["callback_processed"] = false
	}
	if status == InstanceCompleted || status == InstanceFailed {
		now := time.Now().UTC()
		data["completed_at"] = now
		data["callback_processed"] = false
	}
	_, err := r.db.Update(ctx, TableModuleInstances, store.Filters{"id": instanceID}, data)
	if err != nil {
		return errs.Internal("instance: set status failed", err)
	}
	return nil
}

// MarkPolled is InstancePoller's idempotency write: callback_processed is
// flipped true and last_polled_status mirrors the current status.
// Only InstancePoller calls this.
func (r *InstanceRepo) MarkPolled(ctx context.Context, instanceID string, status InstanceStatus) error {
	_, err := r.db.Update(ctx, TableModuleInstances, store.Filters{"id": instanceID}, store.Row{
		"callback_processed": true,
		"last_polled_status": string(status),
	})
	if err != nil {
		return errs.Internal("instance: mark polled failed", err)
	}
	return nil
}

// Activate flips a blocked instance to active once DependencyResolver
// finds its dependencies all terminal.
func (r *InstanceRepo) Activate(ctx context.Context, instanceID string) error {
	_, err := r.db.Update(ctx, TableModuleInstances, store.Filters{"id": instanceID}, store.Row{"status": string(InstanceActive)})
	if err != nil {
		return errs.Internal("instance: activate failed", err)
	}
	return nil
}

// PendingPollWork returns instances satisfying InstancePoller's work
// predicate, ordered by completed_at ascending,
// capped at 100 per cycle.
func (r *InstanceRepo) PendingPollWork(ctx context.Context) ([]*ModuleInstance, error) {
	completed, err := r.db.Get(ctx, TableModuleInstances, store.Filters{"status": "completed", "last_polled_status": "in_progress", "callback_processed": false}, store.QueryOpts{OrderBy: "completed_at ASC", Limit: 100})
	if err != nil {
		return nil, errs.Internal("instance: pending poll work (completed) failed", err)
	}
	failed, err := r.db.Get(ctx, TableModuleInstances, store.Filters{"status": "failed", "last_polled_status": "in_progress", "callback_processed": false}, store.QueryOpts{OrderBy: "completed_at ASC", Limit: 100})
	if err != nil {
		return nil, errs.Internal("instance: pending poll work (failed) failed", err)
	}
	out := append(rowsToInstances(completed), rowsToInstances(failed)...)
	if len(out) > 100 {
		out = out[:100]
	}
	return out, nil
}

// BlockedInNarrative returns blocked instances linked to narrativeID, the
// candidate set DependencyResolver scans on each completion.
func (r *InstanceRepo) BlockedInNarrative(ctx context.Context, narrativeID string) ([]*ModuleInstance, error) {
	all, err := r.ForNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	var out []*ModuleInstance
	for _, inst := range all {
		if inst.Status == InstanceBlocked {
			out = append(out, inst)
		}
	}
	return out, nil
}

func instanceToRow(inst *ModuleInstance) store.Row {
	var userID any
	if inst.UserID != nil {
		userID = *inst.UserID
	}
	var completedAt any
	if inst.CompletedAt != nil {
		completedAt = *inst.CompletedAt
	}
	return store.Row{
		"id":                 inst.InstanceID,
		"module_class":       string(inst.ModuleClass),
		"agent_id":           inst.AgentID,
		"user_id":            userID,
		"is_public":          inst.IsPublic,
		"status":             string(inst.Status),
		"description":        inst.Description,
		"dependencies":       encodeJSON(inst.Dependencies),
		"config":             encodeJSON(inst.Config),
		"state":              encodeJSON(inst.State),
		"keywords":           encodeJSON(inst.Keywords),
		"topic_hint":         inst.TopicHint,
		"routing_embedding":  encodeVector(inst.RoutingEmbedding),
		"last_polled_status": string(inst.LastPolledStatus),
		"callback_processed": inst.CallbackProcessed,
		"created_at":         inst.CreatedAt,
		"last_used_at":       inst.LastUsedAt,
		"completed_at":       completedAt,
	}
}

func rowsToInstances(rows []store.Row) []*ModuleInstance {
	out := make([]*ModuleInstance, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToInstance(row))
	}
	return out
}

func rowToInstance(row store.Row) *ModuleInstance {
	inst := &ModuleInstance{
		InstanceID:        stringOr(row, "id"),
		ModuleClass:       ModuleClass(stringOr(row, "module_class")),
		AgentID:           stringOr(row, "agent_id"),
		UserID:            stringPtrOr(row, "user_id"),
		IsPublic:          boolOr(row, "is_public"),
		Status:            InstanceStatus(stringOr(row, "status")),
		Description:       stringOr(row, "description"),
		TopicHint:         stringOr(row, "topic_hint"),
		LastPolledStatus:  InstanceStatus(stringOr(row, "last_polled_status")),
		CallbackProcessed: boolOr(row, "callback_processed"),
		CreatedAt:         timeOr(row, "created_at"),
		LastUsedAt:        timeOr(row, "last_used_at"),
		CompletedAt:       timePtrOr(row, "completed_at"),
		RoutingEmbedding:  decodeVector(row, "routing_embedding"),
	}
	decodeJSON(row, "dependencies", &inst.Dependencies)
	decodeJSON(row, "config", &inst.Config)
	decodeJSON(row, "state", &inst.State)
	decodeJSON(row, "keywords", &inst.Keywords)
	return inst
}
