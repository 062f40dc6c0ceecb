package entity

import (
	"context"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
	"github.com/agentctx/platform/internal/vectorstore"
)

// SocialRepo is the typed accessor for SocialEntity rows, scoped to one
// SocialNetworkModule instance and unique on (instance_id, entity_name).
type SocialRepo struct {
	db    store.Store
	index vectorstore.Index // optional accelerator; nil falls back to db.SemanticSearch
}

func NewSocialRepo(db store.Store) *SocialRepo { return &SocialRepo{db: db} }

// WithVectorIndex attaches a vectorstore.Index that SemanticSearch and
// Upsert consult/populate in addition to the SQL cosine scan. Additive:
// existing callers of NewSocialRepo are unaffected if they never call
// this.
func (r *SocialRepo) WithVectorIndex(idx vectorstore.Index) *SocialRepo {
	r.index = idx
	return r
}

// Upsert creates a new entity or merges into the existing one sharing
// (instance_id, entity_name), per the social-network side effect of
// InstanceSync and the AwarenessModule's ongoing
// relationship updates.
func (r *SocialRepo) Upsert(ctx context.Context, e *SocialEntity) (*SocialEntity, error) {
	if e.InstanceID == "" || e.EntityName == "" {
		return nil, errs.Validation("social_entity: instance_id and entity_name are required")
	}
	existing, err := r.db.GetOne(ctx, TableSocialEntities, store.Filters{"instance_id": e.InstanceID, "entity_name": e.EntityName})
	if err != nil {
		return nil, errs.Internal("social_entity: lookup failed", err)
	}
	if existing != nil {
		e.EntityID = stringOr(existing, "id")
		_, err := r.db.Update(ctx, TableSocialEntities, store.Filters{"id": e.EntityID}, entityToRow(e))
		if err != nil {
			return nil, errs.Internal("social_entity: update failed", err)
		}
		return e, nil
	}
	if e.EntityID == "" {
		e.EntityID = idgen.New(idgen.PrefixSocialEntity)
	}
	_, err = r.db.Insert(ctx, TableSocialEntities, entityToRow(e))
	if err != nil {
		return nil, errs.Internal("social_entity: insert failed", err)
	}
	r.indexUpsert(ctx, e)
	return e, nil
}

// indexUpsert mirrors a newly-written entity's embedding into the
// configured vector index. Best-effort: the SQL row is already the
// source of truth, so an index failure is discarded, not returned.
func (r *SocialRepo) indexUpsert(ctx context.Context, e *SocialEntity) {
	if r.index == nil || len(e.Embedding) == 0 {
		return
	}
	_ = r.index.Upsert(ctx, vectorstore.CollectionSocialEmbedding, e.EntityID, e.Embedding)
}

func (r *SocialRepo) ForInstance(ctx context.Context, instanceID string) ([]*SocialEntity, error) {
	rows, err := r.db.Get(ctx, TableSocialEntities, store.Filters{"instance_id": instanceID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("social_entity: list failed", err)
	}
	out := make([]*SocialEntity, len(rows))
	for i, row := range rows {
		out[i] = rowToSocialEntity(row)
	}
	return out, nil
}

// SemanticSearch ranks an instance's entities by embedding similarity to
// queryVec, the primitive behind "who do I know like X" lookups. When a
// vectorstore.Index is configured it resolves candidate ids first and
// hydrates rows by id (cheaper than a full table scan at scale); with no
// index configured it falls back to the SQL cosine scan directly.
func (r *SocialRepo) SemanticSearch(ctx context.Context, instanceID string, queryVec []float32, limit int, minSimilarity float64) ([]*SocialEntity, error) {
	if r.index != nil {
		matches, err := r.index.Search(ctx, vectorstore.CollectionSocialEmbedding, queryVec, limit)
		if err == nil && len(matches) > 0 {
			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.ID
			}
			rows, err := r.db.GetByIDs(ctx, TableSocialEntities, "id", ids)
			if err == nil {
				out := make([]*SocialEntity, 0, len(rows))
				for i, row := range rows {
					if row == nil || matches[i].Score < minSimilarity {
						continue
					}
					e := rowToSocialEntity(row)
					if e.InstanceID == instanceID {
						out = append(out, e)
					}
				}
				return out, nil
			}
		}
		// Index miss or error: fall through to the SQL scan below.
	}
	scored, err := r.db.SemanticSearch(ctx, TableSocialEntities, "embedding", queryVec, store.Filters{"instance_id": instanceID}, limit, minSimilarity)
	if err != nil {
		return nil, errs.Internal("social_entity: semantic search failed", err)
	}
	out := make([]*SocialEntity, len(scored))
	for i, s := range scored {
		out[i] = rowToSocialEntity(s.Row)
	}
	return out, nil
}

func entityToRow(e *SocialEntity) store.Row {
	var lastInteraction any
	if e.LastInteractionTime != nil {
		lastInteraction = *e.LastInteractionTime
	}
	return store.Row{
		"id":                    e.EntityID,
		"instance_id":           e.InstanceID,
		"entity_name":           e.EntityName,
		"entity_description":    e.EntityDescription,
		"entity_type":           e.EntityType,
		"identity_info":         encodeJSON(e.IdentityInfo),
		"contact_info":          encodeJSON(e.ContactInfo),
		"tags":                  encodeJSON(e.Tags),
		"relationship_strength": e.RelationshipStrength,
		"interaction_count":     e.InteractionCount,
		"last_interaction_time": lastInteraction,
		"persona":               e.Persona,
		"related_job_ids":       encodeJSON(e.RelatedJobIDs),
		"expertise_domains":     encodeJSON(e.ExpertiseDomains),
		"embedding":             encodeVector(e.Embedding),
	}
}

func rowToSocialEntity(row store.Row) *SocialEntity {
	e := &SocialEntity{
		EntityID:             stringOr(row, "id"),
		InstanceID:           stringOr(row, "instance_id"),
		EntityName:           stringOr(row, "entity_name"),
		EntityDescription:    stringOr(row, "entity_description"),
		EntityType:           stringOr(row, "entity_type"),
		RelationshipStrength: floatOr(row, "relationship_strength"),
		InteractionCount:     intOr(row, "interaction_count"),
		LastInteractionTime:  timePtrOr(row, "last_interaction_time"),
		Persona:              stringOr(row, "persona"),
		Embedding:            decodeVector(row, "embedding"),
	}
	decodeJSON(row, "identity_info", &e.IdentityInfo)
	decodeJSON(row, "contact_info", &e.ContactInfo)
	decodeJSON(row, "tags", &e.Tags)
	decodeJSON(row, "related_job_ids", &e.RelatedJobIDs)
	decodeJSON(row, "expertise_domains", &e.ExpertiseDomains)
	return e
}
