package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
)

// InboxRepo is the typed accessor for InboxMessage rows: append-only,
// with is_read a one-way false-to-true flip.
type InboxRepo struct {
	db store.Store
}

func NewInboxRepo(db store.Store) *InboxRepo { return &InboxRepo{db: db} }

func (r *InboxRepo) Create(ctx context.Context, m *InboxMessage) (*InboxMessage, error) {
	if m.UserID == "" {
		return nil, errs.Validation("inbox: user_id is required")
	}
	if m.MessageID == "" {
		m.MessageID = idgen.New(idgen.PrefixInbox)
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.Insert(ctx, TableInbox, store.Row{
		"id":           m.MessageID,
		"user_id":      m.UserID,
		"title":        m.Title,
		"content":      m.Content,
		"message_type": string(m.MessageType),
		"source_type":  string(m.SourceType),
		"source_id":    m.SourceID,
		"event_id":     m.EventID,
		"is_read":      false,
		"created_at":   m.CreatedAt,
	})
	if err != nil {
		return nil, errs.Internal("inbox: insert failed", err)
	}
	return m, nil
}

func (r *InboxRepo) ForUser(ctx context.Context, userID string, unreadOnly bool) ([]*InboxMessage, error) {
	filters := store.Filters{"user_id": userID}
	if unreadOnly {
		filters["is_read"] = false
	}
	rows, err := r.db.Get(ctx, TableInbox, filters, store.QueryOpts{OrderBy: "created_at DESC"})
	if err != nil {
		return nil, errs.Internal("inbox: list failed", err)
	}
	out := make([]*InboxMessage, len(rows))
	for i, row := range rows {
		out[i] = rowToInbox(row)
	}
	return out, nil
}

// MarkRead flips is_read false->true. Flipping an already-read message is
// a no-op, not an error: the write is idempotent, never reversible.
func (r *InboxRepo) MarkRead(ctx context.Context, messageID string) error {
	_, err := r.db.Update(ctx, TableInbox, store.Filters{"id": messageID}, store.Row{"is_read": true})
	if err != nil {
		return errs.Internal("inbox: mark read failed", err)
	}
	return nil
}

// MarkAllRead flips every unread message for userID in one statement.
func (r *InboxRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := r.db.Update(ctx, TableInbox, store.Filters{"user_id": userID, "is_read": false}, store.Row{"is_read": true})
	if err != nil {
		return 0, errs.Internal("inbox: mark all read failed", err)
	}
	return n, nil
}

func rowToInbox(row store.Row) *InboxMessage {
	return &InboxMessage{
		MessageID:   stringOr(row, "id"),
		UserID:      stringOr(row, "user_id"),
		Title:       stringOr(row, "title"),
		Content:     stringOr(row, "content"),
		MessageType: MessageType(stringOr(row, "message_type")),
		SourceType:  SourceType(stringOr(row, "source_type")),
		SourceID:    stringOr(row, "source_id"),
		EventID:     stringOr(row, "event_id"),
		IsRead:      boolOr(row, "is_read"),
		CreatedAt:   timeOr(row, "created_at"),
	}
}
