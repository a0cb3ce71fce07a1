package app

import (
	"context"
	"time"

	"docqa/internal/model"
	"docqa/internal/rag"
)

// Embedder vectorizes text. Failures are *rag.EmbeddingError.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore holds index entries. Every call is scoped to one tenant.
type VectorStore interface {
	Upsert(ctx context.Context, entries []rag.IndexEntry) error
	Query(ctx context.Context, tenantID string, vector []float32, topK int, filter rag.Filter) (rag.Retrieval, error)
	DeleteByFilter(ctx context.Context, tenantID, documentID string) error
}

// ResponseCache maps fingerprints to generated answers. InvalidateTenant
// advances the tenant's epoch.
type ResponseCache interface {
	Epoch(ctx context.Context, tenantID string) (int64, error)
	Get(ctx context.Context, fingerprint string) (*rag.CachedAnswer, bool, error)
	Set(ctx context.Context, fingerprint string, answer rag.Answer, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Generator completes a composed prompt. Failures are *rag.GenerationError.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DocumentStore is the document metadata bookkeeping.
type DocumentStore interface {
	Save(ctx context.Context, doc *model.Document) error
	ListByTenant(ctx context.Context, tenantID string) ([]model.Document, error)
	GetByIDAndTenant(ctx context.Context, id, tenantID string) (*model.Document, error)
	UpdateStatus(ctx context.Context, id, status string, chunkCount int) error
	DeleteByIDAndTenant(ctx context.Context, id, tenantID string) error
	DeleteByTenant(ctx context.Context, tenantID string) (int64, error)
}

// ObjectStore keeps raw uploaded bytes. They are never read back here.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// JobPublisher enqueues ingest jobs.
type JobPublisher interface {
	PublishIngest(ctx context.Context, job model.IngestJob) error
}

// PromptSource resolves a tenant's configured system prompt. An empty prompt
// means the tenant has none.
type PromptSource interface {
	SystemPrompt(ctx context.Context, tenantID string) (string, error)
}
