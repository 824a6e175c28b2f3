package utils

import "strings"

// Token estimation for prompt budgeting. The 4 chars per token heuristic is
// close enough for the Llama, Gemini and GPT tokenizers the chain talks to.

// CountTokens estimates the number of tokens in text. Non-empty text always
// counts as at least one token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit trims text so it fits within roughly limit tokens,
// cutting back to the last space when one is nearby so prompts do not end
// mid-word.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	cut := string(runes[:charLimit])
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)-80 {
		cut = cut[:idx]
	}
	return cut
}

// TokenBreakdown maps labeled prompt sections to their estimated token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
