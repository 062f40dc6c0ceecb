package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/agentctx/platform/internal/store"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE widgets (
		id TEXT PRIMARY KEY,
		name TEXT,
		status TEXT,
		embedding TEXT
	)`)
	require.NoError(t, err)

	return New(db, "sqlite")
}

func TestInsertGetOneRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "widgets", store.Row{"id": "w_1", "name": "alpha", "status": "active"})
	require.NoError(t, err)

	row, err := s.GetOne(ctx, "widgets", store.Filters{"id": "w_1"})
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "alpha", row["name"])
	require.Equal(t, "active", row["status"])
}

func TestGetByIDsPreservesOrderAndNulls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "widgets", store.Row{"id": "w_1", "name": "alpha"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "widgets", store.Row{"id": "w_2", "name": "beta"})
	require.NoError(t, err)

	rows, err := s.GetByIDs(ctx, "widgets", "id", []string{"w_2", "missing", "w_1"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "beta", rows[0]["name"])
	require.Nil(t, rows[1])
	require.Equal(t, "alpha", rows[2]["name"])
}

func TestUpdateRequiresFilters(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(context.Background(), "widgets", store.Filters{}, store.Row{"name": "x"})
	require.Error(t, err)
}

func TestUpsertUpdatesExistingRowPerID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Upsert(ctx, "widgets", store.Row{"id": "w_1", "name": "alpha", "status": "active"}, "id")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.Upsert(ctx, "widgets", store.Row{"id": "w_1", "name": "alpha-renamed", "status": "active"}, "id")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err := s.Get(ctx, "widgets", store.Filters{}, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "alpha-renamed", rows[0]["name"])
}

func TestSemanticSearchRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "widgets", store.Row{"id": "w_1", "name": "close", "embedding": []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "widgets", store.Row{"id": "w_2", "name": "far", "embedding": []float32{0, 1, 0}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "widgets", store.Row{"id": "w_3", "name": "no-embedding"})
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, "widgets", "embedding", []float32{1, 0, 0}, store.Filters{}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].Row["name"])
	require.InDelta(t, 1.0, results[0].Score, 0.0001)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.Insert(ctx, "widgets", store.Row{"id": "w_1", "name": "alpha"}); err != nil {
			return err
		}
		return errors.New("forced rollback") // sentinel: force an error to trigger rollback
	})
	require.Error(t, err)

	rows, err := s.Get(ctx, "widgets", store.Filters{}, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 0)
}
