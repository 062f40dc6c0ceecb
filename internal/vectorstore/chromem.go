package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded, zero-config vector-index
// backend. An empty PersistPath keeps everything in memory.
type ChromemConfig struct {
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// Chromem is an Index backed by an in-process chromem-go database; the
// platform's development/zero-config fallback when no Qdrant endpoint is
// configured.
type Chromem struct {
	db   *chromem.DB
	mu   sync.RWMutex
	cols map[string]*chromem.Collection
}

func NewChromem(cfg ChromemConfig) (*Chromem, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: open persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Chromem{db: db, cols: make(map[string]*chromem.Collection)}, nil
}

// noEmbed is the collection embedding func: every vector the platform
// stores is already computed upstream (routing_embedding, Job.embedding,
// SocialEntity.embedding), so chromem is never asked to embed text.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("vectorstore: chromem collection embedding func invoked but all vectors are pre-computed")
}

func (c *Chromem) collection(name string) (*chromem.Collection, error) {
	c.mu.RLock()
	if col, ok := c.cols[name]; ok {
		c.mu.RUnlock()
		return col, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.cols[name]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get/create chromem collection %q: %w", name, err)
	}
	c.cols[name] = col
	return col, nil
}

func (c *Chromem) Upsert(ctx context.Context, collection, id string, vector []float32) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	doc := chromem.Document{ID: id, Embedding: vector}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vectorstore: chromem upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (c *Chromem) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	if col.Count() == 0 {
		return nil, nil
	}
	if topK > col.Count() {
		topK = col.Count()
	}
	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: chromem search %s: %w", collection, err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return out, nil
}

func (c *Chromem) Delete(ctx context.Context, collection, id string) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vectorstore: chromem delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (c *Chromem) Close() error { return nil }

var _ Index = (*Chromem)(nil)
