// Package vectorstoretest runs the behaviour every vector store backend must
// share.
package vectorstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/rag"
)

// Dimension is the vector length the suite writes.
const Dimension = 3

type Store interface {
	Upsert(ctx context.Context, entries []rag.IndexEntry) error
	Query(ctx context.Context, tenantID string, vector []float32, topK int, filter rag.Filter) (rag.Retrieval, error)
	DeleteByFilter(ctx context.Context, tenantID, documentID string) error
}

func entry(id, tenant, doc string, vec ...float32) rag.IndexEntry {
	return rag.IndexEntry{
		ID:         id,
		TenantID:   tenant,
		DocumentID: doc,
		Vector:     vec,
		Text:       "text " + id,
		SourceName: doc + ".pdf",
	}
}

// Run exercises a fresh store built by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("query orders by descending score", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{
			entry("a", "t1", "d1", 1, 0, 0),
			entry("b", "t1", "d1", 0.7, 0.7, 0),
			entry("c", "t1", "d2", 0, 1, 0),
		}))

		got, err := s.Query(ctx, "t1", []float32{1, 0.1, 0}, 2, rag.Filter{})
		require.NoError(t, err)
		require.True(t, got.Found())
		require.Len(t, got.Results, 2)
		assert.Equal(t, "a", got.Results[0].ChunkID)
		assert.Equal(t, "b", got.Results[1].ChunkID)
		assert.GreaterOrEqual(t, got.Results[0].Score, got.Results[1].Score)
		assert.Equal(t, "d1.pdf", got.Results[0].SourceName)
		assert.Equal(t, "text a", got.Results[0].Text)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{
			entry("a", "t1", "d1", 1, 0, 0),
			entry("b", "t2", "d2", 1, 0, 0),
		}))

		got, err := s.Query(ctx, "t2", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "b", got.Results[0].ChunkID)

		got, err = s.Query(ctx, "t3", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		assert.False(t, got.Found())
	})

	t.Run("document filter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{
			entry("a", "t1", "d1", 1, 0, 0),
			entry("b", "t1", "d2", 1, 0, 0),
		}))

		got, err := s.Query(ctx, "t1", []float32{1, 0, 0}, 10, rag.Filter{DocumentIDs: []string{"d2"}})
		require.NoError(t, err)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "d2", got.Results[0].DocumentID)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{entry("a", "t1", "d1", 1, 0, 0)}))
		replaced := entry("a", "t1", "d1", 0, 1, 0)
		replaced.Text = "new text"
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{replaced}))

		got, err := s.Query(ctx, "t1", []float32{0, 1, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "new text", got.Results[0].Text)
		assert.InDelta(t, 1.0, got.Results[0].Score, 1e-6)
	})

	t.Run("delete by document and by tenant", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{
			entry("a", "t1", "d1", 1, 0, 0),
			entry("b", "t1", "d2", 1, 0, 0),
			entry("c", "t2", "d1", 1, 0, 0),
		}))

		require.NoError(t, s.DeleteByFilter(ctx, "t1", "d1"))
		got, err := s.Query(ctx, "t1", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "b", got.Results[0].ChunkID)

		// Same document id under another tenant survives.
		got, err = s.Query(ctx, "t2", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		assert.Len(t, got.Results, 1)

		require.NoError(t, s.DeleteByFilter(ctx, "t1", ""))
		got, err = s.Query(ctx, "t1", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		assert.False(t, got.Found())

		got, err = s.Query(ctx, "t2", []float32{1, 0, 0}, 10, rag.Filter{})
		require.NoError(t, err)
		assert.Len(t, got.Results, 1)
	})

	t.Run("tenant is mandatory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Query(ctx, "", []float32{1, 0, 0}, 10, rag.Filter{})
		assert.ErrorIs(t, err, rag.ErrTenantRequired)
		assert.ErrorIs(t, s.DeleteByFilter(ctx, "", ""), rag.ErrTenantRequired)
		assert.ErrorIs(t, s.Upsert(ctx, []rag.IndexEntry{entry("a", "", "d1", 1, 0, 0)}), rag.ErrTenantRequired)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.Upsert(ctx, []rag.IndexEntry{entry("a", "t1", "d1", 1, 0)}), rag.ErrDimensionMismatch)
		_, err := s.Query(ctx, "t1", []float32{1}, 10, rag.Filter{})
		assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
	})
}
