package util

import (
	"encoding/json"
	"testing"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		lang  string
		want  string
	}{
		{
			name:  "tagged block",
			input: "Here is the solution:\n```python\ndef add(a, b):\n    return a + b\n```\nHope that helps.",
			lang:  "python",
			want:  "def add(a, b):\n    return a + b",
		},
		{
			name:  "prefers tagged block over earlier untagged",
			input: "```\nsome pseudo code\n```\n```python\ndef f():\n    pass\n```",
			lang:  "python",
			want:  "def f():\n    pass",
		},
		{
			name:  "falls back to first block when tag missing",
			input: "```\ndef g():\n    return 1\n```",
			lang:  "python",
			want:  "def g():\n    return 1",
		},
		{
			name:  "bare code without fences",
			input: "Sure, here you go.\ndef h(x):\n    return x * 2",
			lang:  "python",
			want:  "def h(x):\n    return x * 2",
		},
		{
			name:  "prose only",
			input: "I cannot solve this problem.",
			lang:  "python",
			want:  "",
		},
		{
			name:  "case insensitive tag",
			input: "```Python\ndef k():\n    pass\n```",
			lang:  "python",
			want:  "def k():\n    pass",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCode(tt.input, tt.lang)
			if got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "closed think block",
			input: "<think>let me reason about this</think>\nThe answer is 4.",
			want:  "The answer is 4.",
		},
		{
			name:  "thinking variant",
			input: "<thinking>hmm</thinking>answer",
			want:  "answer",
		},
		{
			name:  "unclosed block truncates",
			input: "Partial answer <think>never finished reasoning",
			want:  "Partial answer",
		},
		{
			name:  "no reasoning",
			input: "plain response",
			want:  "plain response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripReasoning(tt.input)
			if got != tt.want {
				t.Errorf("StripReasoning() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string // "array" or "object"
	}{
		{
			name:     "plain object",
			input:    `{"success": true}`,
			wantType: "object",
		},
		{
			name:     "object in markdown",
			input:    "```json\n{\"success\": true}\n```",
			wantType: "object",
		},
		{
			name:     "object with text before",
			input:    `Verdict follows: {"success": false, "reason": "wrong output"}`,
			wantType: "object",
		},
		{
			name:     "truncated object",
			input:    `{"success": true, "reason": "looks right"`,
			wantType: "object",
		},
		{
			name:     "truncated nested object",
			input:    `{"tests": {"t1": {"passed": true}, "t2": {`,
			wantType: "object",
		},
		{
			name:     "plain array",
			input:    `[1, 2, 3]`,
			wantType: "array",
		},
		{
			name:     "truncated array",
			input:    `["a", "b", "c"`,
			wantType: "array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.input)

			if len(got) == 0 {
				t.Errorf("ExtractJSON() returned empty string")
				return
			}

			if tt.wantType == "array" {
				var arr []interface{}
				if err := json.Unmarshal([]byte(got), &arr); err != nil {
					t.Errorf("ExtractJSON() produced invalid array JSON: %v\nGot: %s", err, got)
				}
			} else {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(got), &obj); err != nil {
					t.Errorf("ExtractJSON() produced invalid object JSON: %v\nGot: %s", err, got)
				}
			}
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "unescaped newline",
			input: "{\"a\": \"x\ny\"}",
			want:  "{\"a\": \"x\\ny\"}",
		},
		{
			name:  "carriage return pair",
			input: "{\"a\": \"x\r\ny\"}",
			want:  "{\"a\": \"x\\ny\"}",
		},
		{
			name:  "valid json unchanged",
			input: `{"a": "b"}`,
			want:  `{"a": "b"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeJSON(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchBracket(t *testing.T) {
	tests := []struct {
		name  string
		input string
		start int
		want  int
	}{
		{
			name:  "simple object",
			input: `{"k": "v"}`,
			start: 0,
			want:  9,
		},
		{
			name:  "braces inside strings ignored",
			input: `{"k": "has { and }"}`,
			start: 0,
			want:  19,
		},
		{
			name:  "escaped quote inside string",
			input: `{"k": "quote \" here"}`,
			start: 0,
			want:  21,
		},
		{
			name:  "unterminated",
			input: `{"k": {"nested": 1}`,
			start: 0,
			want:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchBracket(tt.input, tt.start, '{', '}')
			if got != tt.want {
				t.Errorf("matchBracket() = %d, want %d", got, tt.want)
			}
		})
	}
}
