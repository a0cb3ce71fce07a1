// Package memstore is an in-process vector store with brute-force cosine
// ranking. Nothing survives a restart.
package memstore

import (
	"context"
	"slices"
	"sync"

	"docqa/internal/rag"
	"docqa/internal/vectorstore"
)

type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]rag.IndexEntry
}

func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		entries:   make(map[string]rag.IndexEntry),
	}
}

func (s *Store) Upsert(ctx context.Context, entries []rag.IndexEntry) error {
	if err := vectorstore.CheckEntries(entries, s.dimension); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &rag.IndexUnavailableError{Op: "upsert", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Vector = slices.Clone(e.Vector)
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Store) Query(ctx context.Context, tenantID string, vector []float32, topK int, filter rag.Filter) (rag.Retrieval, error) {
	if err := vectorstore.CheckQuery(tenantID, vector, s.dimension); err != nil {
		return rag.Retrieval{}, err
	}
	if err := ctx.Err(); err != nil {
		return rag.Retrieval{}, &rag.IndexUnavailableError{Op: "query", Err: err}
	}
	s.mu.RLock()
	var scored []rag.SearchResult
	for _, e := range s.entries {
		if e.TenantID != tenantID || !vectorstore.MatchesFilter(filter, e.DocumentID) {
			continue
		}
		scored = append(scored, rag.SearchResult{
			ChunkID:    e.ID,
			DocumentID: e.DocumentID,
			Text:       e.Text,
			SourceName: e.SourceName,
			Score:      vectorstore.Cosine(vector, e.Vector),
		})
	}
	s.mu.RUnlock()
	return rag.Retrieval{Results: vectorstore.TopK(scored, topK)}, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return rag.ErrTenantRequired
	}
	if err := ctx.Err(); err != nil {
		return &rag.IndexUnavailableError{Op: "delete", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.TenantID == tenantID && (documentID == "" || e.DocumentID == documentID) {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored entries across all tenants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
