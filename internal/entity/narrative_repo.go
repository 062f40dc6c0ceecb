package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// NarrativeRepo is the typed accessor for Narrative rows.
type NarrativeRepo struct {
	db store.Store
}

func NewNarrativeRepo(db store.Store) *NarrativeRepo { return &NarrativeRepo{db: db} }

func (r *NarrativeRepo) Create(ctx context.Context, n *Narrative) (*Narrative, error) {
	if n.AgentID == "" {
		return nil, errs.Validation("narrative: agent_id is required")
	}
	if n.NarrativeID == "" {
		n.NarrativeID = idgen.New(idgen.PrefixNarrative)
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	_, err := r.db.Insert(ctx, TableNarratives, store.Row{
		"id":             n.NarrativeID,
		"agent_id":       n.AgentID,
		"narrative_info": encodeJSON(n.NarrativeInfo),
		"created_at":     n.CreatedAt,
		"updated_at":     n.UpdatedAt,
	})
	if err != nil {
		return nil, errs.Internal("narrative: insert failed", err)
	}
	return n, nil
}

func (r *NarrativeRepo) Get(ctx context.Context, narrativeID string) (*Narrative, error) {
	row, err := r.db.GetOne(ctx, TableNarratives, store.Filters{"id": narrativeID})
	if err != nil {
		return nil, errs.Internal("narrative: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("narrative")
	}
	return rowToNarrative(row), nil
}

// FindByActors locates a narrative for (agentID, userID) whose actors
// contain exactly that user/agent pair, used by AgentRuntime to
// locate-or-create a narrative for a turn.
func (r *NarrativeRepo) FindByActors(ctx context.Context, agentID, userID string) (*Narrative, error) {
	rows, err := r.db.Get(ctx, TableNarratives, store.Filters{"agent_id": agentID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("narrative: list failed", err)
	}
	for _, row := range rows {
		n := rowToNarrative(row)
		if hasActor(n.NarrativeInfo.Actors, userID, ActorUser) {
			return n, nil
		}
	}
	return nil, nil
}

func hasActor(actors []Actor, id string, typ ActorType) bool {
	for _, a := range actors {
		if a.ID == id && a.Type == typ {
			return true
		}
	}
	return false
}

// AddParticipant idempotently adds id as a participant actor.
func (r *NarrativeRepo) AddParticipant(ctx context.Context, narrativeID, id string) error {
	n, err := r.Get(ctx, narrativeID)
	if err != nil {
		return err
	}
	if hasActor(n.NarrativeInfo.Actors, id, ActorParticipant) {
		return nil
	}
	n.NarrativeInfo.Actors = append(n.NarrativeInfo.Actors, Actor{ID: id, Type: ActorParticipant})
	_, err = r.db.Update(ctx, TableNarratives, store.Filters{"id": narrativeID}, store.Row{
		"narrative_info": encodeJSON(n.NarrativeInfo),
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return errs.Internal("narrative: add participant failed", err)
	}
	return nil
}

// UpdateSummary sets narrative_info.current_summary.
func (r *NarrativeRepo) UpdateSummary(ctx context.Context, narrativeID, summary string) error {
	n, err := r.Get(ctx, narrativeID)
	if err != nil {
		return err
	}
	n.NarrativeInfo.CurrentSummary = summary
	_, err = r.db.Update(ctx, TableNarratives, store.Filters{"id": narrativeID}, store.Row{
		"narrative_info": encodeJSON(n.NarrativeInfo),
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return errs.Internal("narrative: update summary failed", err)
	}
	return nil
}

func rowToNarrative(row store.Row) *Narrative {
	n := &Narrative{
		NarrativeID: stringOr(row, "id"),
		AgentID:     stringOr(row, "agent_id"),
		CreatedAt:   timeOr(row, "created_at"),
		UpdatedAt:   timeOr(row, "updated_at"),
	}
	decodeJSON(row, "narrative_info", &n.NarrativeInfo)
	return n
}
