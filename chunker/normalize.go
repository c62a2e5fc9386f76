package chunker

import (
	"regexp"
	"strings"
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace canonicalizes document text before chunking:
// line endings become \n, runs of spaces and tabs collapse to a single
// space, three or more consecutive newlines collapse to two, and leading
// and trailing whitespace is trimmed. Chunk offsets are positions in the
// normalized text, so the same input always normalizes the same way.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EstimateTokens approximates the token count of text for quota
// accounting: one token per four bytes of English-like text, never
// less than one.
func EstimateTokens(text string) int {
	if n := len(text) / 4; n > 1 {
		return n
	}
	return 1
}
