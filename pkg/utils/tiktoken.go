// Package utils provides token counting, file and naming helpers shared by the pipeline.
package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// truncationMarker is appended to text cut down by TruncateLines.
const truncationMarker = "... (truncated)"

// TokenCounter provides token counting for prompt budgeting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// Local models have no public encoding; every model is approximated with the GPT-4 encoding,
// which is close enough for budgeting prompt sections.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens without requiring a TokenCounter instance.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// ValidateTokenLimit reports whether text fits within limit.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit truncates text to fit within the specified token limit.
// This truncates by characters, proportionally, not on exact token boundaries.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9) // 0.9 safety margin
	if charLimit >= len(text) {
		return text
	}
	// Avoid splitting a multi-byte rune.
	for charLimit > 0 && !utf8.RuneStart(text[charLimit]) {
		charLimit--
	}
	return text[:charLimit] + "..."
}

// TruncateLines keeps whole leading lines of text while the total stays within limit tokens.
// A marker line is appended when anything was dropped. Tool output (CSV rows) is cut this
// way so the model never sees half a record.
func (tc *TokenCounter) TruncateLines(text string, limit int) (string, bool) {
	if limit <= 0 || tc.CountTokens(text) <= limit {
		return text, false
	}

	budget := limit - tc.CountTokens(truncationMarker)
	lines := strings.SplitAfter(text, "\n")

	var b strings.Builder
	used := 0
	for _, line := range lines {
		n := tc.CountTokens(line)
		if used+n > budget {
			break
		}
		b.WriteString(line)
		used += n
	}

	out := b.String()
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out + truncationMarker, true
}
