package rag

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// overlapCharsPerWord converts the overlap budget from characters to a
	// word count for the carried-over tail.
	overlapCharsPerWord = 10
	sourcePrefix        = "From file: "
)

var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:()\[\]{}'"-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	sentenceUnit    = regexp.MustCompile(`[^.!?]+[.!?]*`)

	chunkNamespace = uuid.MustParse("6f1c3a52-6a55-4c1e-9a43-1d8c2b7e0f11")
)

// Chunker splits documents into sentence-aligned chunks of at most size
// characters. A chunk after the first starts with the last words of its
// predecessor.
type Chunker struct {
	size         int
	overlapWords int
}

// NewChunker builds a chunker for size characters with overlap characters of
// carry-over, approximated as overlap/10 words.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{
		size:         size,
		overlapWords: overlap / overlapCharsPerWord,
	}
}

// Size returns the configured maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// OverlapWords returns how many trailing words seed the next chunk.
func (c *Chunker) OverlapWords() int { return c.overlapWords }

// Chunk splits doc into chunks. Empty or punctuation-only text yields no
// chunks. A sentence longer than the chunk size becomes its own oversized
// chunk instead of being cut mid-sentence.
func (c *Chunker) Chunk(doc Document) []Chunk {
	sentences := SplitSentences(Normalize(doc.Text))
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks []Chunk
		parts  []string
		length int
		fresh  int
		seeded int
	)
	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		// Never close a buffer that only holds the carried-over tail.
		if fresh > 0 && length+1+n > c.size {
			body := strings.Join(parts, " ")
			chunks = append(chunks, newChunk(doc, len(chunks), body, seeded))

			tail := lastWords(body, c.overlapWords)
			parts = parts[:0]
			length, fresh, seeded = 0, 0, len(tail)
			if len(tail) > 0 {
				seed := strings.Join(tail, " ")
				parts = append(parts, seed)
				length = utf8.RuneCountInString(seed)
			}
		}
		if len(parts) > 0 {
			length++
		}
		parts = append(parts, sentence)
		length += n
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, newChunk(doc, len(chunks), strings.Join(parts, " "), seeded))
	}
	return chunks
}

// Normalize strips characters outside letters, digits and basic punctuation
// and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	text = disallowedChars.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitSentences splits normalized text on terminal punctuation, keeping the
// punctuation with its sentence and dropping empty units.
func SplitSentences(text string) []string {
	units := sentenceUnit.FindAllString(text, -1)
	sentences := make([]string, 0, len(units))
	for _, unit := range units {
		unit = strings.TrimSpace(unit)
		if strings.Trim(unit, ".!? ") == "" {
			continue
		}
		sentences = append(sentences, unit)
	}
	return sentences
}

// ChunkID derives a stable chunk id so re-ingesting a document replaces its
// index entries instead of duplicating them.
func ChunkID(documentID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(ordinal))).String()
}

func newChunk(doc Document, ordinal int, body string, overlapWords int) Chunk {
	return Chunk{
		ID:           ChunkID(doc.ID, ordinal),
		DocumentID:   doc.ID,
		TenantID:     doc.TenantID,
		Ordinal:      ordinal,
		Content:      sourcePrefix + doc.Name + "\n\n" + body,
		Body:         body,
		OverlapWords: overlapWords,
	}
}

func lastWords(text string, k int) []string {
	if k <= 0 {
		return nil
	}
	words := strings.Fields(text)
	if len(words) > k {
		words = words[len(words)-k:]
	}
	return words
}
