package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/store"
)

// AwarenessRepo is the typed accessor for instance_awareness rows, one
// per agent's public AwarenessModule instance.
type AwarenessRepo struct {
	db store.Store
}

func NewAwarenessRepo(db store.Store) *AwarenessRepo { return &AwarenessRepo{db: db} }

// GetForInstance returns the freeform awareness text for instanceID, or
// "" if none has been written yet.
func (r *AwarenessRepo) GetForInstance(ctx context.Context, instanceID string) (string, error) {
	row, err := r.db.GetOne(ctx, TableAwareness, store.Filters{"instance_id": instanceID})
	if err != nil {
		return "", errs.Internal("awareness: get failed", err)
	}
	if row == nil {
		return "", nil
	}
	return stringOr(row, "awareness"), nil
}

// Put upserts instanceID's awareness text, the write side of the
// GET/PUT /api/agents/{agent_id}/awareness endpoint.
func (r *AwarenessRepo) Put(ctx context.Context, instanceID, awareness string) error {
	_, err := r.db.Upsert(ctx, TableAwareness, store.Row{
		"instance_id": instanceID,
		"awareness":   awareness,
		"updated_at":  time.Now().UTC(),
	}, "instance_id")
	if err != nil {
		return errs.Internal("awareness: upsert failed", err)
	}
	return nil
}
