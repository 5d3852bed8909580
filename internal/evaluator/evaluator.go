package evaluator

import (
	"context"

	"github.com/edgebench/edgebench/pkg/models"
)

// Evaluator scores a candidate solution against a problem. Implementations
// must treat the candidate code as untrusted input.
type Evaluator interface {
	Evaluate(ctx context.Context, problem models.Problem, code string) (models.Evaluation, error)
}
