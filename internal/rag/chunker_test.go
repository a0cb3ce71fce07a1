package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clauseText(n int) string {
	sentences := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		sentences = append(sentences, fmt.Sprintf("Clause %02d explains how the refund policy applies to orders.", i))
	}
	return strings.Join(sentences, " ")
}

func freshWords(c Chunk) []string {
	return strings.Fields(c.Body)[c.OverlapWords:]
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)

	assert.Empty(t, c.Chunk(Document{ID: "d1", Text: ""}))
	assert.Empty(t, c.Chunk(Document{ID: "d1", Text: "   \n\t "}))
	assert.Empty(t, c.Chunk(Document{ID: "d1", Text: "... !! ?"}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Price 10 only. Really", Normalize("  Price\t$10 only.\n\n Really  "))
	assert.Equal(t, "Grüße, Welt!", Normalize("Grüße,   Welt!"))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hello world. How are you? Fine! trailing text")
	assert.Equal(t, []string{"Hello world.", "How are you?", "Fine!", "trailing text"}, got)

	got = SplitSentences("Wait... what?! Ok")
	assert.Equal(t, []string{"Wait...", "what?!", "Ok"}, got)
}

func TestChunkThreeThousandCharacterDocument(t *testing.T) {
	text := clauseText(50)
	require.Equal(t, 2999, utf8.RuneCountInString(text))

	chunks := NewChunker(1000, 200).Chunk(Document{ID: "doc", TenantID: "u1", Name: "policy.txt", Text: text})
	require.GreaterOrEqual(t, len(chunks), 3)
	require.LessOrEqual(t, len(chunks), 4)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Body), 1000)
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "doc", c.DocumentID)
		assert.Equal(t, "u1", c.TenantID)
		assert.True(t, strings.HasPrefix(c.Content, "From file: policy.txt\n\n"))
		assert.Equal(t, "From file: policy.txt\n\n"+c.Body, c.Content)
	}

	first := strings.Fields(chunks[0].Body)
	second := strings.Fields(chunks[1].Body)
	assert.Equal(t, 0, chunks[0].OverlapWords)
	assert.Equal(t, 20, chunks[1].OverlapWords)
	assert.Equal(t, first[len(first)-20:], second[:20])
}

func TestChunkReproducesSentenceSequence(t *testing.T) {
	text := "Alpha beta gamma. " + clauseText(30) + " A closing line without punctuation"
	chunker := NewChunker(250, 60)
	chunks := chunker.Chunk(Document{ID: "d", Name: "n", Text: text})
	require.Greater(t, len(chunks), 1)

	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, freshWords(c)...)
	}
	want := strings.Fields(strings.Join(SplitSentences(Normalize(text)), " "))
	assert.Equal(t, want, rebuilt)
}

func TestChunkConsecutiveChunksOverlap(t *testing.T) {
	chunks := NewChunker(300, 80).Chunk(Document{ID: "d", Text: clauseText(20)})
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Body)
		cur := strings.Fields(chunks[i].Body)
		k := chunks[i].OverlapWords
		require.Equal(t, 8, k)
		assert.Equal(t, prev[len(prev)-k:], cur[:k])
	}
}

func TestChunkFreshTextStaysWithinSize(t *testing.T) {
	long := strings.Repeat("word ", 80) + "end."
	text := clauseText(6) + " " + long + " " + clauseText(6)
	size := 200
	chunks := NewChunker(size, 50).Chunk(Document{ID: "d", Text: text})

	var oversized int
	for _, c := range chunks {
		fresh := strings.Join(freshWords(c), " ")
		if utf8.RuneCountInString(fresh) > size {
			oversized++
			assert.Len(t, SplitSentences(fresh), 1, "only a lone sentence may exceed the size")
		}
	}
	assert.Equal(t, 1, oversized)
}

func TestChunkWithoutOverlap(t *testing.T) {
	chunker := NewChunker(120, 5)
	assert.Equal(t, 0, chunker.OverlapWords())

	chunks := chunker.Chunk(Document{ID: "d", Text: clauseText(6)})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, 0, c.OverlapWords)
	}
}

func TestNewChunkerClampsArguments(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, 0, c.OverlapWords())

	c = NewChunker(100, 400)
	assert.Equal(t, 5, c.OverlapWords())
}

func TestChunkIDIsDeterministic(t *testing.T) {
	assert.Equal(t, ChunkID("doc", 0), ChunkID("doc", 0))
	assert.NotEqual(t, ChunkID("doc", 0), ChunkID("doc", 1))
	assert.NotEqual(t, ChunkID("doc", 1), ChunkID("doc2", 1))

	doc := Document{ID: "doc", Text: clauseText(40)}
	first := NewChunker(500, 100).Chunk(doc)
	second := NewChunker(500, 100).Chunk(doc)
	assert.Equal(t, first, second)
}
