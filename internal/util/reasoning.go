package util

import (
	"regexp"
	"strings"
)

// Precompiled patterns for reasoning tag detection
var (
	// Matches both <think> and <thinking> tag forms
	reasoningTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	// Some models open a reasoning block and never close it when truncated
	openReasoningRegex = regexp.MustCompile(`(?i)<think(?:ing)?>`)
)

// ContainsReasoning checks whether the response carries inline reasoning tags.
func ContainsReasoning(response string) bool {
	return openReasoningRegex.MatchString(response)
}

// SplitReasoning separates inline reasoning from the final answer. An unclosed
// reasoning tag swallows everything after it: the reasoning was truncated and
// no answer followed.
func SplitReasoning(response string) (reasoning, answer string) {
	var parts []string
	for _, m := range reasoningTagRegex.FindAllStringSubmatch(response, -1) {
		if len(m) > 1 {
			parts = append(parts, strings.TrimSpace(m[1]))
		}
	}

	answer = reasoningTagRegex.ReplaceAllString(response, "")
	if loc := openReasoningRegex.FindStringIndex(answer); loc != nil {
		parts = append(parts, strings.TrimSpace(answer[loc[1]:]))
		answer = answer[:loc[0]]
	}

	return strings.Join(parts, "\n\n"), strings.TrimSpace(answer)
}

// StripReasoning removes reasoning tags and their content, returning only the
// final answer.
func StripReasoning(response string) string {
	_, answer := SplitReasoning(response)
	return answer
}
