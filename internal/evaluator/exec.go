package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgebench/edgebench/internal/util"
	"github.com/edgebench/edgebench/pkg/models"
)

// driverTemplate wraps candidate code with a single test case. The {!r}
// formatting keeps the mismatch message free of Sprintf verbs.
const driverTemplate = `import sys

%s

_result = %s(%s)
_expected = (%s)
if _result != _expected:
    sys.stderr.write("mismatch: got {!r}, want {!r}\n".format(_result, _expected))
    sys.exit(1)
`

// maxStderrLen bounds the error text captured into a test outcome
const maxStderrLen = 500

// ExecEvaluator runs candidate code against each test case in a subprocess.
// One interpreter invocation per case keeps a crashing case from hiding the
// outcomes of the others.
type ExecEvaluator struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecEvaluator creates an evaluator that executes tests with the given
// interpreter command
func NewExecEvaluator(command string, timeout time.Duration, logger *slog.Logger) *ExecEvaluator {
	return &ExecEvaluator{
		command: command,
		timeout: timeout,
		logger:  logger.With("component", "evaluator"),
	}
}

// Evaluate runs every test case and reports per-case outcomes. Success means
// all cases passed; a problem without test cases cannot be exec-evaluated.
func (e *ExecEvaluator) Evaluate(ctx context.Context, problem models.Problem, code string) (models.Evaluation, error) {
	if strings.TrimSpace(code) == "" {
		return models.Evaluation{}, fmt.Errorf("no code to evaluate")
	}
	if len(problem.Tests) == 0 {
		return models.Evaluation{}, fmt.Errorf("problem %d has no test cases", problem.ID)
	}

	dir, err := os.MkdirTemp("", "edgebench-eval-")
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to create eval dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("Failed to remove eval dir", "dir", dir, "error", err)
		}
	}()

	outcomes := make([]models.TestOutcome, 0, len(problem.Tests))
	for i, tc := range problem.Tests {
		driver := fmt.Sprintf(driverTemplate, code, problem.FunctionName, tc.Input, tc.Expected)
		path := filepath.Join(dir, fmt.Sprintf("case_%d.py", i))
		if err := os.WriteFile(path, []byte(driver), 0600); err != nil {
			return models.Evaluation{}, fmt.Errorf("failed to write test driver: %w", err)
		}

		outcomes = append(outcomes, e.runCase(ctx, path))

		// A cancelled run stops evaluating; the item is retried from scratch
		if ctx.Err() != nil {
			return models.Evaluation{}, ctx.Err()
		}
	}

	success := true
	for _, o := range outcomes {
		if !o.Passed {
			success = false
			break
		}
	}

	return models.Evaluation{Success: success, TestOutcomes: outcomes}, nil
}

func (e *ExecEvaluator) runCase(ctx context.Context, driverPath string) models.TestOutcome {
	caseCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(caseCtx, e.command, driverPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return models.TestOutcome{Passed: true}
	}

	if caseCtx.Err() == context.DeadlineExceeded {
		return models.TestOutcome{
			Passed: false,
			Error:  fmt.Sprintf("test timed out after %s", e.timeout),
		}
	}

	msg := strings.TrimSpace(output.String())
	if msg == "" {
		msg = err.Error()
	}
	return models.TestOutcome{
		Passed: false,
		Error:  util.TruncateString(msg, maxStderrLen),
	}
}
