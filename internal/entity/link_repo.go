package entity

import (
	"context"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/store"
)

// LinkRepo is the typed accessor for InstanceLink rows: the many-to-many
// join between non-public module instances and the narratives they
// belong to, unique on the (instance_id, narrative_id) pair.
type LinkRepo struct {
	db store.Store
}

func NewLinkRepo(db store.Store) *LinkRepo { return &LinkRepo{db: db} }

// Create links instanceID into narrativeID, upgrading an existing
// historical link to active rather than duplicating the row.
func (r *LinkRepo) Create(ctx context.Context, l *InstanceLink) error {
	if l.InstanceID == "" || l.NarrativeID == "" {
		return errs.Validation("instance_link: instance_id and narrative_id are required")
	}
	existing, err := r.db.GetOne(ctx, TableInstanceLinks, store.Filters{"instance_id": l.InstanceID, "narrative_id": l.NarrativeID})
	if err != nil {
		return errs.Internal("instance_link: lookup failed", err)
	}
	if existing != nil {
		_, err := r.db.Update(ctx, TableInstanceLinks, store.Filters{"instance_id": l.InstanceID, "narrative_id": l.NarrativeID}, store.Row{"link_type": string(l.LinkType)})
		if err != nil {
			return errs.Internal("instance_link: update failed", err)
		}
		return nil
	}
	_, err = r.db.Insert(ctx, TableInstanceLinks, store.Row{
		"instance_id":  l.InstanceID,
		"narrative_id": l.NarrativeID,
		"link_type":    string(l.LinkType),
	})
	if err != nil {
		return errs.Internal("instance_link: insert failed", err)
	}
	return nil
}

// Archive downgrades a link to historical, used when a narrative stops
// actively routing to an instance but keeps it for context history.
func (r *LinkRepo) Archive(ctx context.Context, instanceID, narrativeID string) error {
	_, err := r.db.Update(ctx, TableInstanceLinks, store.Filters{"instance_id": instanceID, "narrative_id": narrativeID}, store.Row{"link_type": string(LinkHistorical)})
	if err != nil {
		return errs.Internal("instance_link: archive failed", err)
	}
	return nil
}

func (r *LinkRepo) ForNarrative(ctx context.Context, narrativeID string) ([]*InstanceLink, error) {
	rows, err := r.db.Get(ctx, TableInstanceLinks, store.Filters{"narrative_id": narrativeID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("instance_link: list failed", err)
	}
	out := make([]*InstanceLink, len(rows))
	for i, row := range rows {
		out[i] = rowToLink(row)
	}
	return out, nil
}

// ForInstance returns the narrative(s) instanceID is linked to, active or
// historical. A module instance other than ChatModule/JobModule is
// typically linked to zero or one narrative.
func (r *LinkRepo) ForInstance(ctx context.Context, instanceID string) ([]*InstanceLink, error) {
	rows, err := r.db.Get(ctx, TableInstanceLinks, store.Filters{"instance_id": instanceID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("instance_link: list by instance failed", err)
	}
	out := make([]*InstanceLink, len(rows))
	for i, row := range rows {
		out[i] = rowToLink(row)
	}
	return out, nil
}

func rowToLink(row store.Row) *InstanceLink {
	return &InstanceLink{
		InstanceID:  stringOr(row, "instance_id"),
		NarrativeID: stringOr(row, "narrative_id"),
		LinkType:    LinkType(stringOr(row, "link_type")),
	}
}
