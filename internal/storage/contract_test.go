package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// index is the method set both backends implement.
type index interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []Record) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context, name string) (int, error)
}

func record(doc string, vector ...float32) Record {
	return Record{
		ID:       uuid.New().String(),
		Document: doc,
		Vector:   vector,
		Metadata: map[string]string{"source": "fundamentos_ia"},
	}
}

// runIndexContract exercises one backend against the behavior the
// retrieval pipeline relies on.
func runIndexContract(t *testing.T, idx index, collection string) {
	ctx := context.Background()

	_ = idx.DropCollection(ctx, collection)

	t.Run("missing collection", func(t *testing.T) {
		err := idx.DropCollection(ctx, collection)
		assert.ErrorIs(t, err, ErrCollectionNotFound)

		_, err = idx.Count(ctx, collection)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	require.NoError(t, idx.CreateCollection(ctx, collection, 3))

	t.Run("empty collection query", func(t *testing.T) {
		matches, err := idx.Query(ctx, collection, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	records := []Record{
		record("red", 1, 0, 0),
		record("mostly red", 0.9, 0.1, 0),
		record("green", 0, 1, 0),
		record("blue", 0, 0, 1),
	}
	require.NoError(t, idx.Upsert(ctx, collection, records))

	t.Run("count", func(t *testing.T) {
		n, err := idx.Count(ctx, collection)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("query orders by distance", func(t *testing.T) {
		matches, err := idx.Query(ctx, collection, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)

		assert.Equal(t, "red", matches[0].Document)
		assert.Equal(t, "mostly red", matches[1].Document)
		assert.InDelta(t, 0, matches[0].Distance, 1e-5)
		assert.InDelta(t, 1, matches[2].Distance, 1e-5)
		for i := 1; i < len(matches); i++ {
			assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
		}
		assert.Equal(t, "fundamentos_ia", matches[0].Metadata["source"])
		assert.Equal(t, records[0].ID, matches[0].ID)
	})

	t.Run("k above count", func(t *testing.T) {
		matches, err := idx.Query(ctx, collection, []float32{0, 1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, matches, 4)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := idx.Upsert(ctx, collection, []Record{record("short", 1, 0)})
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = idx.Query(ctx, collection, []float32{1, 0}, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := idx.Query(ctx, collection, nil, 1)
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	require.NoError(t, idx.DropCollection(ctx, collection))
	_, err := idx.Count(ctx, collection)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
