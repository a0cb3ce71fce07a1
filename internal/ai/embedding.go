package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"docqa/internal/rag"
)

var errEmptyInput = errors.New("embedding input is empty")

type EmbeddingConfig struct {
	Model     string
	Dimension int
	// RatePerSec caps outbound embedding calls; zero or less disables the cap.
	RatePerSec float64
	Burst      int
}

// Embedder turns text into fixed-dimension vectors.
type Embedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	limiter   *rate.Limiter
}

func NewEmbedder(client *openai.Client, cfg EmbeddingConfig) *Embedder {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Embedder{
		client:    client,
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Dimension is the vector length every call must return.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, "embed", []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one call and returns vectors in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, "embed_batch", texts)
}

func (e *Embedder) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = strings.TrimSpace(t)
		if input[i] == "" {
			return nil, &rag.EmbeddingError{Op: op, Err: errEmptyInput}
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &rag.EmbeddingError{Op: op, Err: fmt.Errorf("rate limiter wait failed: %w", err)}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: e.model,
	})
	if err != nil {
		return nil, &rag.EmbeddingError{Op: op, Err: err}
	}
	if len(resp.Data) != len(input) {
		return nil, &rag.EmbeddingError{
			Op:  op,
			Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(input)),
		}
	}

	vectors := make([][]float32, len(input))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) || vectors[item.Index] != nil {
			return nil, &rag.EmbeddingError{Op: op, Err: fmt.Errorf("bad embedding index %d", item.Index)}
		}
		if e.dimension > 0 && len(item.Embedding) != e.dimension {
			return nil, &rag.EmbeddingError{
				Op:  op,
				Err: fmt.Errorf("%w: got %d, want %d", rag.ErrDimensionMismatch, len(item.Embedding), e.dimension),
			}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
