package scheduler

import (
	"fmt"
	"strings"

	"github.com/edgebench/edgebench/internal/inference"
	"github.com/edgebench/edgebench/pkg/models"
)

const (
	systemPromptBase = "You are an expert %s programmer. Solve the given problem with a single self-contained function. Reply with exactly one fenced code block and no surrounding commentary."

	reasoningHint = "Think the problem through carefully before giving your final answer."

	toolUseHint = "You may call the run_python tool once to check your solution before giving the final answer."
)

// buildMessages assembles the conversation for one work item. The system
// prompt varies by mode; the user prompt carries the problem statement and
// the expected function signature.
func buildMessages(problem models.Problem, mode models.Mode, language string) []inference.Message {
	system := fmt.Sprintf(systemPromptBase, language)
	switch mode {
	case models.ModeReasoning:
		system += " " + reasoningHint
	case models.ModeToolUse:
		system += " " + toolUseHint
	}

	return []inference.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: problemPrompt(problem, language)},
	}
}

// problemPrompt renders one problem as a user message
func problemPrompt(problem models.Problem, language string) string {
	var b strings.Builder
	if problem.Title != "" {
		b.WriteString(problem.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(problem.Description)

	if problem.FunctionName != "" {
		fmt.Fprintf(&b, "\n\nImplement a %s function named %s.", language, problem.FunctionName)
		if len(problem.Tests) > 0 {
			tc := problem.Tests[0]
			fmt.Fprintf(&b, "\nExample: %s(%s) should return %s.", problem.FunctionName, tc.Input, tc.Expected)
		}
	}

	return b.String()
}
