package util

import (
	"regexp"
	"strings"
)

// Precompiled patterns (compiled once at package init)
var (
	codeBlockRegex = regexp.MustCompile("(?s)```([a-zA-Z0-9_+.-]*)[ \t]*\r?\n?(.*?)```")
)

// ExtractCode pulls a code solution out of a model response. It prefers a
// fenced block tagged with the requested language, falls back to the first
// non-empty fenced block, and finally to a bare-code heuristic for models
// that skip the fences entirely.
func ExtractCode(s, lang string) string {
	matches := codeBlockRegex.FindAllStringSubmatch(s, -1)

	// First pass: language-tagged blocks
	if lang != "" {
		for _, m := range matches {
			if strings.EqualFold(strings.TrimSpace(m[1]), lang) {
				if code := strings.TrimSpace(m[2]); code != "" {
					return code
				}
			}
		}
	}

	// Second pass: any non-empty block
	for _, m := range matches {
		if code := strings.TrimSpace(m[2]); code != "" {
			return code
		}
	}

	// No fences. If the response starts with something that looks like code,
	// take it from there; models sometimes emit prose before the solution.
	trimmed := strings.TrimSpace(s)
	for _, line := range strings.Split(trimmed, "\n") {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "def ") || strings.HasPrefix(l, "class ") ||
			strings.HasPrefix(l, "import ") || strings.HasPrefix(l, "from ") ||
			strings.HasPrefix(l, "function ") || strings.HasPrefix(l, "func ") {
			idx := strings.Index(trimmed, line)
			return strings.TrimSpace(trimmed[idx:])
		}
	}

	return ""
}

// ExtractJSON extracts a JSON object or array from a response that may wrap it
// in markdown code blocks, repairing a truncated trailing structure when it
// can. Used for judge verdicts.
func ExtractJSON(s string) string {
	matches := codeBlockRegex.FindStringSubmatch(s)
	if len(matches) > 2 && (matches[1] == "" || strings.EqualFold(matches[1], "json")) {
		s = strings.TrimSpace(matches[2])
	} else {
		s = strings.TrimSpace(s)
	}

	objectStart := strings.Index(s, "{")
	arrayStart := strings.Index(s, "[")

	// Whichever structure opens first wins
	if objectStart != -1 && (arrayStart == -1 || objectStart < arrayStart) {
		if end := matchBracket(s, objectStart, '{', '}'); end != -1 {
			return s[objectStart : end+1]
		}
		if strings.LastIndex(s, "\"") > objectStart {
			return strings.TrimRight(s[objectStart:], " \n\t,") + "}"
		}
	}
	if arrayStart != -1 {
		if end := matchBracket(s, arrayStart, '[', ']'); end != -1 {
			return s[arrayStart : end+1]
		}
		if strings.LastIndex(s, "\"") > arrayStart {
			return strings.TrimRight(s[arrayStart:], " \n\t,") + "]"
		}
	}

	return s
}

// matchBracket returns the index of the closing bracket matching the opener at
// startPos, skipping brackets inside string literals. Returns -1 when the
// structure is unterminated.
func matchBracket(s string, startPos int, openChar, closeChar byte) int {
	depth := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == openChar {
			depth++
		} else if ch == closeChar {
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// SanitizeJSON escapes literal newlines inside string values, a common defect
// in model-emitted JSON.
func SanitizeJSON(s string) string {
	var result strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}
		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}
		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}
		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}

// TruncateString shortens a string for log output.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
