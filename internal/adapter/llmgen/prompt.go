// Package llmgen implements the suite generator and suggestion generator
// ports on top of the LiteLLM proxy.
package llmgen

import (
	"context"
	"strings"
	"unicode"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/litellm"
)

// chatClient is the slice of the LiteLLM client this package needs.
type chatClient interface {
	ChatCompletion(ctx context.Context, req litellm.ChatCompletionRequest) (*litellm.ChatCompletionResponse, error)
}

// sanitizePromptInput strips control characters and common prompt injection
// patterns from stored text (tool descriptions, user questions) before it is
// embedded in an LLM prompt.
func sanitizePromptInput(s string) string {
	// Strip non-printable control characters (keep newlines, tabs, spaces).
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Neutralize role markers at line beginnings that could trick the model
	// into treating embedded data as instructions.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	const maxInputLen = 10000
	if len(s) > maxInputLen {
		s = s[:maxInputLen] + "\n[truncated]"
	}

	return s
}

// extractJSON attempts to extract a JSON value from a string that may
// contain markdown fences or other surrounding text.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	// Find the first object or array and its matching end.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(s, "]"); end > arrStart {
			return s[arrStart : end+1]
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(s, "}"); end > objStart {
			return s[objStart : end+1]
		}
	}

	return s
}
