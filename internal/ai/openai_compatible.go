// Package ai wraps OpenAI-compatible endpoints for embeddings and chat
// completion.
package ai

import (
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ClientConfig holds the endpoint settings shared by the embedder and the
// generator.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewOpenAICompatibleClient builds a go-openai client against any
// OpenAI-compatible base URL.
func NewOpenAICompatibleClient(cfg ClientConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		clientCfg.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientCfg)
}
