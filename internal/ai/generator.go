package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"

	"docqa/internal/rag"
)

type GeneratorConfig struct {
	Model string
	// MaxRetries applies to rate-limit and server errors only.
	MaxRetries   int
	RetryBackoff time.Duration
}

// Generator runs one chat completion per prompt.
type Generator struct {
	client       *openai.Client
	model        string
	maxRetries   int
	retryBackoff time.Duration
}

func NewGenerator(client *openai.Client, cfg GeneratorConfig) *Generator {
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	return &Generator{
		client:       client,
		model:        cfg.Model,
		maxRetries:   max(cfg.MaxRetries, 0),
		retryBackoff: retryBackoff,
	}
}

// Complete sends prompt as a single user message and returns the reply text.
func (g *Generator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	}

	var answer string
	attempt := func() error {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("empty llm choices"))
		}
		answer = resp.Choices[0].Message.Content
		if strings.TrimSpace(answer) == "" {
			return backoff.Permanent(errors.New("empty llm content"))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retryBackoff
	policy.MaxElapsedTime = 0
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.maxRetries)), ctx))
	if err != nil {
		return "", &rag.GenerationError{Op: "complete", Err: fmt.Errorf("model %s: %w", g.model, err)}
	}
	return answer, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	// transport failures
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
