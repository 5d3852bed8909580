package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/edgebench/edgebench/internal/inference"
	"github.com/edgebench/edgebench/internal/util"
	"github.com/edgebench/edgebench/pkg/models"
)

const judgePromptTemplate = `You are grading a candidate solution to a programming problem.

Problem:
%s

Candidate solution:
%s

Judge ONLY whether the solution correctly solves the problem. Respond with a
single JSON object and nothing else:
{"correct": true or false, "reason": "one short sentence"}`

// Completer is the slice of the engine client the judge needs
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (*inference.Completion, error)
}

// verdict is the JSON shape the judge model is asked to return
type verdict struct {
	Correct bool   `json:"correct"`
	Reason  string `json:"reason"`
}

// JudgeEvaluator grades solutions with a judge model. It serves problems
// that carry no executable tests, where an exit status cannot decide
// correctness.
type JudgeEvaluator struct {
	client  Completer
	modelID string
	logger  *slog.Logger
}

// NewJudgeEvaluator creates a model-graded evaluator
func NewJudgeEvaluator(client Completer, modelID string, logger *slog.Logger) *JudgeEvaluator {
	return &JudgeEvaluator{
		client:  client,
		modelID: modelID,
		logger:  logger.With("component", "judge"),
	}
}

// Evaluate asks the judge model for a verdict and maps it onto a single
// test outcome
func (j *JudgeEvaluator) Evaluate(ctx context.Context, problem models.Problem, code string) (models.Evaluation, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, problem.Description, code)

	resp, err := j.client.Complete(ctx, inference.Request{
		ModelID:  j.modelID,
		Mode:     models.ModeStandard,
		Messages: []inference.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("judge request failed: %w", err)
	}

	content := util.StripReasoning(resp.Text)

	j.logger.Debug("Received judge response",
		"problem_id", problem.ID,
		"length", len(content),
		"first_200_chars", util.TruncateString(content, 200))

	v, err := j.parseVerdict(content)
	if err != nil {
		j.logger.Error("Failed to parse judge verdict",
			"problem_id", problem.ID,
			"error", err,
			"response", util.TruncateString(content, 500))
		return models.Evaluation{}, fmt.Errorf("failed to parse judge verdict: %w", err)
	}

	outcome := models.TestOutcome{Passed: v.Correct}
	if !v.Correct {
		outcome.Error = v.Reason
	}

	return models.Evaluation{
		Success:      v.Correct,
		TestOutcomes: []models.TestOutcome{outcome},
	}, nil
}

func (j *JudgeEvaluator) parseVerdict(response string) (verdict, error) {
	// The model may wrap the object in markdown or prose
	jsonStr := util.SanitizeJSON(util.ExtractJSON(response))

	var v verdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return verdict{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return v, nil
}
