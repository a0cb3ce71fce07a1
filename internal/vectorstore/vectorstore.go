// Package vectorstore holds the pieces shared by the vector store backends:
// argument checks and exact cosine ranking.
package vectorstore

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"docqa/internal/rag"
)

// CheckEntries rejects entries without a tenant or with the wrong vector length.
func CheckEntries(entries []rag.IndexEntry, dimension int) error {
	for _, e := range entries {
		if strings.TrimSpace(e.TenantID) == "" {
			return fmt.Errorf("entry %s: %w", e.ID, rag.ErrTenantRequired)
		}
		if e.ID == "" || e.DocumentID == "" {
			return fmt.Errorf("entry %q: id and document id are required", e.ID)
		}
		if dimension > 0 && len(e.Vector) != dimension {
			return fmt.Errorf("entry %s: %w: got %d, want %d", e.ID, rag.ErrDimensionMismatch, len(e.Vector), dimension)
		}
	}
	return nil
}

// CheckQuery rejects a query without a tenant or with the wrong vector length.
func CheckQuery(tenantID string, vector []float32, dimension int) error {
	if strings.TrimSpace(tenantID) == "" {
		return rag.ErrTenantRequired
	}
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", rag.ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1], or 0 when
// either is empty, zero or of a different length.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return ClampScore(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ClampScore bounds a similarity to [-1, 1]. Rounding can push the cosine of
// near-parallel vectors just past 1.
func ClampScore(score float64) float64 {
	return max(-1, min(1, score))
}

// TopK sorts results by descending score, ties by chunk id, and keeps the
// first k.
func TopK(results []rag.SearchResult, k int) []rag.SearchResult {
	if k <= 0 || len(results) == 0 {
		return nil
	}
	slices.SortFunc(results, func(a, b rag.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.ChunkID, b.ChunkID)
		}
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// MatchesFilter reports whether documentID passes f.
func MatchesFilter(f rag.Filter, documentID string) bool {
	return len(f.DocumentIDs) == 0 || slices.Contains(f.DocumentIDs, documentID)
}
