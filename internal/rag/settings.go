package rag

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrSystemPromptTooLong is returned when a system prompt exceeds the limit.
var ErrSystemPromptTooLong = errors.New("system prompt too long")

// AskSettings are the per-request knobs of an ask. The zero value of a field
// means "not set" and falls back to the defaults it is merged over.
type AskSettings struct {
	SystemPrompt string
	TopK         int
	MaxTokens    int
}

// Merge returns a copy of s with the fields set in override replacing its own.
// Neither input is modified.
func (s AskSettings) Merge(override AskSettings) AskSettings {
	merged := s
	if p := strings.TrimSpace(override.SystemPrompt); p != "" {
		merged.SystemPrompt = p
	}
	if override.TopK > 0 {
		merged.TopK = override.TopK
	}
	if override.MaxTokens > 0 {
		merged.MaxTokens = override.MaxTokens
	}
	return merged
}

// ValidateSystemPrompt checks a prompt against maxLen characters.
func ValidateSystemPrompt(prompt string, maxLen int) error {
	if maxLen > 0 && utf8.RuneCountInString(prompt) > maxLen {
		return ErrSystemPromptTooLong
	}
	return nil
}
