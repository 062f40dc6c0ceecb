package entity

import (
	"context"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/store"
)

// RAGStoreRepo is the typed accessor for RAGStore rows: exactly one row
// per agent, keyed on the unique display_name "agent_{agent_id}".
type RAGStoreRepo struct {
	db store.Store
}

func NewRAGStoreRepo(db store.Store) *RAGStoreRepo { return &RAGStoreRepo{db: db} }

func (r *RAGStoreRepo) GetForAgent(ctx context.Context, agentID string) (*RAGStore, error) {
	row, err := r.db.GetOne(ctx, TableRAGStores, store.Filters{"display_name": "agent_" + agentID})
	if err != nil {
		return nil, errs.Internal("rag_store: get failed", err)
	}
	if row == nil {
		return nil, nil
	}
	return rowToRAGStore(row), nil
}

// EnsureForAgent creates the agent's GeminiRAGModule store binding on
// first use, otherwise returns the existing one untouched.
func (r *RAGStoreRepo) EnsureForAgent(ctx context.Context, agentID, storeName string) (*RAGStore, error) {
	existing, err := r.GetForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	s := &RAGStore{DisplayName: "agent_" + agentID, StoreName: storeName}
	_, err = r.db.Insert(ctx, TableRAGStores, ragStoreToRow(s))
	if err != nil {
		return nil, errs.Internal("rag_store: insert failed", err)
	}
	return s, nil
}

// RecordUpload appends a file to uploaded_files and refreshes file_count.
func (r *RAGStoreRepo) RecordUpload(ctx context.Context, agentID, fileID string) error {
	s, err := r.GetForAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if s == nil {
		return errs.NotFound("rag store")
	}
	s.UploadedFiles = append(s.UploadedFiles, fileID)
	s.FileCount = len(s.UploadedFiles)
	_, err = r.db.Update(ctx, TableRAGStores, store.Filters{"display_name": s.DisplayName}, store.Row{
		"uploaded_files": encodeJSON(s.UploadedFiles),
		"file_count":     s.FileCount,
	})
	if err != nil {
		return errs.Internal("rag_store: record upload failed", err)
	}
	return nil
}

// RemoveUpload deletes a file from uploaded_files and refreshes
// file_count, the DELETE side of rag-files management.
func (r *RAGStoreRepo) RemoveUpload(ctx context.Context, agentID, fileID string) error {
	s, err := r.GetForAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if s == nil {
		return errs.NotFound("rag store")
	}
	kept := s.UploadedFiles[:0]
	for _, f := range s.UploadedFiles {
		if f != fileID {
			kept = append(kept, f)
		}
	}
	s.UploadedFiles = kept
	s.FileCount = len(kept)
	_, err = r.db.Update(ctx, TableRAGStores, store.Filters{"display_name": s.DisplayName}, store.Row{
		"uploaded_files": encodeJSON(s.UploadedFiles),
		"file_count":     s.FileCount,
	})
	if err != nil {
		return errs.Internal("rag_store: remove upload failed", err)
	}
	return nil
}

// UpdateKeywords replaces the store's keyword-weight index, used to
// surface a RAG store in BasicInfoModule keyword routing.
func (r *RAGStoreRepo) UpdateKeywords(ctx context.Context, agentID string, keywords []KeywordScore) error {
	_, err := r.db.Update(ctx, TableRAGStores, store.Filters{"display_name": "agent_" + agentID}, store.Row{
		"keywords": encodeJSON(keywords),
	})
	if err != nil {
		return errs.Internal("rag_store: update keywords failed", err)
	}
	return nil
}

func ragStoreToRow(s *RAGStore) store.Row {
	return store.Row{
		"display_name":   s.DisplayName,
		"store_name":     s.StoreName,
		"keywords":       encodeJSON(s.Keywords),
		"file_count":     s.FileCount,
		"uploaded_files": encodeJSON(s.UploadedFiles),
	}
}

func rowToRAGStore(row store.Row) *RAGStore {
	s := &RAGStore{
		DisplayName: stringOr(row, "display_name"),
		StoreName:   stringOr(row, "store_name"),
		FileCount:   intOr(row, "file_count"),
	}
	decodeJSON(row, "keywords", &s.Keywords)
	decodeJSON(row, "uploaded_files", &s.UploadedFiles)
	return s
}
