package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// EventRepo is the typed accessor for Event rows.
type EventRepo struct {
	db store.Store
}

func NewEventRepo(db store.Store) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Create(ctx context.Context, e *Event) (*Event, error) {
	if e.NarrativeID == "" {
		return nil, errs.Validation("event: narrative_id is required")
	}
	if e.EventID == "" {
		e.EventID = idgen.New(idgen.PrefixEvent)
	}
	e.CreatedAt = time.Now().UTC()
	_, err := r.db.Insert(ctx, TableEvents, store.Row{
		"id":             e.EventID,
		"narrative_id":   e.NarrativeID,
		"agent_id":       e.AgentID,
		"user_id":        e.UserID,
		"trigger":        e.Trigger,
		"trigger_source": e.TriggerSource,
		"final_output":   e.FinalOutput,
		"event_log":      encodeJSON(e.EventLog),
		"created_at":     e.CreatedAt,
	})
	if err != nil {
		return nil, errs.Internal("event: insert failed", err)
	}
	return e, nil
}

// LatestForInstance returns the most recent event whose trigger_source
// names instanceID, used by JobEngine's prompt composer to surface a
// dependency's latest final_output.
func (r *EventRepo) LatestForInstance(ctx context.Context, instanceID string) (*Event, error) {
	rows, err := r.db.Get(ctx, TableEvents, store.Filters{"trigger_source": instanceID}, store.QueryOpts{OrderBy: "created_at DESC", Limit: 1})
	if err != nil {
		return nil, errs.Internal("event: list failed", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToEvent(rows[0]), nil
}

// ForNarrative returns narrativeID's events oldest first, the query
// behind GET /api/agents/{agent_id}/chat-history.
func (r *EventRepo) ForNarrative(ctx context.Context, narrativeID string) ([]*Event, error) {
	rows, err := r.db.Get(ctx, TableEvents, store.Filters{"narrative_id": narrativeID}, store.QueryOpts{OrderBy: "created_at ASC"})
	if err != nil {
		return nil, errs.Internal("event: list by narrative failed", err)
	}
	out := make([]*Event, len(rows))
	for i, row := range rows {
		out[i] = rowToEvent(row)
	}
	return out, nil
}

func rowToEvent(row store.Row) *Event {
	e := &Event{
		EventID:       stringOr(row, "id"),
		NarrativeID:   stringOr(row, "narrative_id"),
		AgentID:       stringOr(row, "agent_id"),
		UserID:        stringOr(row, "user_id"),
		Trigger:       stringOr(row, "trigger"),
		TriggerSource: stringOr(row, "trigger_source"),
		FinalOutput:   stringOr(row, "final_output"),
		CreatedAt:     timeOr(row, "created_at"),
	}
	decodeJSON(row, "event_log", &e.EventLog)
	return e
}
