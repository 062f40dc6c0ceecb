// Package vectorstore backs the routing-embedding and job/social-entity
// similarity lookups of Store.SemanticSearch with a
// dedicated vector index, instead of (or in front of) the SQL cosine
// scan: an external Qdrant collection in production, an embedded
// chromem-go database for zero-config/dev mode. Entity repos use this as
// an accelerator; store.Store.SemanticSearch remains the source of truth
// and the fallback when no Index is configured.
package vectorstore

import "context"

// Match is one scored hit from Index.Search.
type Match struct {
	ID    string
	Score float64
}

// Index is the minimal vector-similarity contract both backends satisfy.
// Collections are created lazily on first Upsert.
type Index interface {
	// Upsert writes or replaces the vector stored under id within
	// collection.
	Upsert(ctx context.Context, collection, id string, vector []float32) error

	// Search returns the topK nearest neighbours to vector within
	// collection, ordered by descending cosine similarity.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error)

	// Delete removes id from collection, if present.
	Delete(ctx context.Context, collection, id string) error

	Close() error
}

// Collection names, one per stored embedding column (routing_embedding,
// Job.embedding, SocialEntity.embedding).
const (
	CollectionRoutingEmbedding = "routing_embedding"
	CollectionJobEmbedding     = "job_embedding"
	CollectionSocialEmbedding  = "social_embedding"
)
