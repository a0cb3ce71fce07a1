package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/rag"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 1}))

	v := []float32{1, 0.1, 0}
	assert.LessOrEqual(t, Cosine(v, v), 1.0)
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 1.0, ClampScore(1.0000000000000002))
	assert.Equal(t, -1.0, ClampScore(-1.0000000000000002))
	assert.Equal(t, 0.25, ClampScore(0.25))
}

func TestTopK(t *testing.T) {
	results := []rag.SearchResult{
		{ChunkID: "c", Score: 0.2},
		{ChunkID: "b", Score: 0.9},
		{ChunkID: "a", Score: 0.2},
		{ChunkID: "d", Score: 0.5},
	}

	top := TopK(results, 3)
	assert.Equal(t, []string{"b", "d", "a"}, chunkIDs(top))
	assert.Nil(t, TopK(results, 0))
	assert.Len(t, TopK(results, 10), 4)
}

func TestCheckEntries(t *testing.T) {
	ok := rag.IndexEntry{ID: "1", TenantID: "t", DocumentID: "d", Vector: []float32{1, 2}}
	assert.NoError(t, CheckEntries([]rag.IndexEntry{ok}, 2))

	noTenant := ok
	noTenant.TenantID = " "
	assert.ErrorIs(t, CheckEntries([]rag.IndexEntry{noTenant}, 2), rag.ErrTenantRequired)

	wrongDim := ok
	wrongDim.Vector = []float32{1}
	assert.ErrorIs(t, CheckEntries([]rag.IndexEntry{wrongDim}, 2), rag.ErrDimensionMismatch)
}

func TestCheckQuery(t *testing.T) {
	assert.ErrorIs(t, CheckQuery("", []float32{1}, 1), rag.ErrTenantRequired)
	assert.ErrorIs(t, CheckQuery("t", []float32{1, 2}, 1), rag.ErrDimensionMismatch)
	assert.NoError(t, CheckQuery("t", []float32{1}, 1))
}

func TestMatchesFilter(t *testing.T) {
	assert.True(t, MatchesFilter(rag.Filter{}, "x"))
	assert.True(t, MatchesFilter(rag.Filter{DocumentIDs: []string{"x", "y"}}, "y"))
	assert.False(t, MatchesFilter(rag.Filter{DocumentIDs: []string{"x"}}, "z"))
}

func chunkIDs(results []rag.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}
