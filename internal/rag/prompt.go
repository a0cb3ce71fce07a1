package rag

import "strings"

const (
	// DefaultSystemPrompt is used when a tenant has not configured one.
	DefaultSystemPrompt = "You are a helpful assistant that answers questions based on the provided documents. Be concise and accurate."

	// NoContextAnswer is returned when retrieval finds nothing for the tenant.
	NoContextAnswer = "I don't have any relevant documents to answer your question. Please upload some documents first."

	answerInstruction = "Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to answer the question, say so clearly."
)

// NoContext is the fallback answer for an empty retrieval.
func NoContext() Answer {
	return Answer{Answer: NoContextAnswer, Sources: []Source{}, ChunkCount: 0}
}

// BuildContext renders results in ranking order as "Source/Content" blocks
// separated by blank lines.
func BuildContext(results []SearchResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, "Source: "+r.SourceName+"\nContent: "+r.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt composes the generator prompt from the system prompt, the
// retrieved context and the question.
func BuildPrompt(systemPrompt, question string, results []SearchResult) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nContext from uploaded documents:\n")
	b.WriteString(BuildContext(results))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(answerInstruction)
	return b.String()
}
