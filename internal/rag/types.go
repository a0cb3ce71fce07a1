// Package rag holds the retrieval-and-answer domain: chunking, fingerprints,
// prompt assembly and the types shared by embedding providers, vector stores
// and the response cache.
package rag

import "time"

// Document is a tenant's ingested text before chunking.
type Document struct {
	ID       string
	TenantID string
	Name     string
	Text     string
}

// Chunk is a bounded, overlapping slice of one document.
type Chunk struct {
	ID         string
	DocumentID string
	TenantID   string
	Ordinal    int
	// Content is what gets embedded and stored: the source-name prefix
	// followed by Body.
	Content string
	// Body is the chunk text without the prefix. Its first OverlapWords words
	// are carried over from the previous chunk.
	Body         string
	OverlapWords int
}

// IndexEntry is the unit persisted by a VectorStore.
type IndexEntry struct {
	ID         string
	TenantID   string
	DocumentID string
	Ordinal    int
	Vector     []float32
	Text       string
	SourceName string
}

// Filter narrows a query inside a tenant. An empty filter matches every
// document the tenant owns.
type Filter struct {
	DocumentIDs []string
}

// SearchResult is one scored match; higher scores are more relevant.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Text       string
	SourceName string
	Score      float64
}

// Retrieval is the outcome of a similarity query. An empty retrieval is a
// normal result, not an error.
type Retrieval struct {
	Results []SearchResult
}

// Found reports whether any chunk matched.
func (r Retrieval) Found() bool {
	return len(r.Results) > 0
}

// Source names a document that contributed to an answer.
type Source struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// Answer is the result shape of every ask path.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	ChunkCount int      `json:"chunk_count"`
}

// CachedAnswer is an Answer stored under a fingerprint until ExpiresAt.
type CachedAnswer struct {
	Fingerprint string    `json:"fingerprint"`
	Answer      Answer    `json:"answer"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now.
func (c *CachedAnswer) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// NewAnswer builds an Answer from retrieval results in ranking order.
func NewAnswer(text string, results []SearchResult) Answer {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{Filename: r.SourceName, Score: r.Score})
	}
	return Answer{
		Answer:     text,
		Sources:    sources,
		ChunkCount: len(results),
	}
}
