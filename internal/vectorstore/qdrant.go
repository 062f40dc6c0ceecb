package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the production vector-index backend.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

func (c *QdrantConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// Qdrant is an Index backed by a remote Qdrant instance.
type Qdrant struct {
	client *qdrant.Client
}

func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	cfg.SetDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Qdrant{client: client}, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *Qdrant) Upsert(ctx context.Context, collection, id string, vector []float32) error {
	if err := q.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
		}},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	result, err := q.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant search %s: %w", collection, err)
	}
	matches := make([]Match, 0, len(result.Result))
	for _, p := range result.Result {
		var id string
		if p.Id != nil {
			switch v := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}
		matches = append(matches, Match{ID: id, Score: float64(p.Score)})
	}
	return matches, nil
}

func (q *Qdrant) Delete(ctx context.Context, collection, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

var _ Index = (*Qdrant)(nil)
