package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	results := []SearchResult{
		{SourceName: "a.pdf", Text: "Refunds within 30 days.", Score: 0.9},
		{SourceName: "b.pdf", Text: "Shipping is free.", Score: 0.4},
	}

	want := "Be concise.\n\n" +
		"Context from uploaded documents:\n" +
		"Source: a.pdf\nContent: Refunds within 30 days.\n\n" +
		"Source: b.pdf\nContent: Shipping is free.\n\n" +
		"Question: What is the refund policy?\n\n" +
		answerInstruction
	assert.Equal(t, want, BuildPrompt("Be concise.", "What is the refund policy?", results))
}

func TestNoContext(t *testing.T) {
	a := NoContext()
	assert.Equal(t, NoContextAnswer, a.Answer)
	assert.NotNil(t, a.Sources)
	assert.Empty(t, a.Sources)
	assert.Zero(t, a.ChunkCount)
}

func TestNewAnswerKeepsRankingOrder(t *testing.T) {
	a := NewAnswer("text", []SearchResult{
		{SourceName: "x", Score: 0.8},
		{SourceName: "y", Score: 0.3},
	})
	assert.Equal(t, []Source{{Filename: "x", Score: 0.8}, {Filename: "y", Score: 0.3}}, a.Sources)
	assert.Equal(t, 2, a.ChunkCount)
}

func TestCachedAnswerExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&CachedAnswer{}).Expired(now))
	assert.False(t, (&CachedAnswer{ExpiresAt: now.Add(time.Second)}).Expired(now))
	assert.True(t, (&CachedAnswer{ExpiresAt: now}).Expired(now))
}

func TestAskSettingsMerge(t *testing.T) {
	defaults := AskSettings{SystemPrompt: DefaultSystemPrompt, TopK: 5, MaxTokens: 4000}

	merged := defaults.Merge(AskSettings{SystemPrompt: "  Be brief. "})
	assert.Equal(t, AskSettings{SystemPrompt: "Be brief.", TopK: 5, MaxTokens: 4000}, merged)
	assert.Equal(t, DefaultSystemPrompt, defaults.SystemPrompt)

	merged = defaults.Merge(AskSettings{SystemPrompt: "   ", TopK: 3})
	assert.Equal(t, DefaultSystemPrompt, merged.SystemPrompt)
	assert.Equal(t, 3, merged.TopK)
}

func TestValidateSystemPrompt(t *testing.T) {
	assert.NoError(t, ValidateSystemPrompt("short", 10))
	assert.ErrorIs(t, ValidateSystemPrompt("this is too long", 10), ErrSystemPromptTooLong)
	assert.NoError(t, ValidateSystemPrompt("anything goes", 0))
}
