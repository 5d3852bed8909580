package evaluator

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func addProblem() models.Problem {
	return models.Problem{
		ID:           1,
		Title:        "Add two numbers",
		Description:  "Return the sum of a and b.",
		FunctionName: "add",
		Tests: []models.TestCase{
			{Input: "1, 2", Expected: "3"},
			{Input: "-1, 1", Expected: "0"},
		},
	}
}

func TestExecEvaluate_AllPass(t *testing.T) {
	requirePython(t)

	ev := NewExecEvaluator("python3", 10*time.Second, testLogger())
	result, err := ev.Evaluate(context.Background(), addProblem(), "def add(a, b):\n    return a + b\n")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if !result.Success {
		t.Error("Expected success for a correct solution")
	}
	if len(result.TestOutcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(result.TestOutcomes))
	}
	for i, o := range result.TestOutcomes {
		if !o.Passed {
			t.Errorf("Outcome %d: expected pass, got error %q", i, o.Error)
		}
	}
}

func TestExecEvaluate_WrongAnswer(t *testing.T) {
	requirePython(t)

	ev := NewExecEvaluator("python3", 10*time.Second, testLogger())
	result, err := ev.Evaluate(context.Background(), addProblem(), "def add(a, b):\n    return a - b\n")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for a wrong solution")
	}
	// add(-1, 1) == -2 != 0, add(1, 2) == -1 != 3: both cases fail
	for i, o := range result.TestOutcomes {
		if o.Passed {
			t.Errorf("Outcome %d: expected failure", i)
		}
		if !strings.Contains(o.Error, "mismatch") {
			t.Errorf("Outcome %d: expected mismatch error, got %q", i, o.Error)
		}
	}
}

func TestExecEvaluate_RuntimeError(t *testing.T) {
	requirePython(t)

	ev := NewExecEvaluator("python3", 10*time.Second, testLogger())
	result, err := ev.Evaluate(context.Background(), addProblem(), "def add(a, b):\n    raise ValueError('boom')\n")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure when the solution raises")
	}
	if len(result.TestOutcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(result.TestOutcomes))
	}
	if !strings.Contains(result.TestOutcomes[0].Error, "ValueError") {
		t.Errorf("Expected ValueError in outcome error, got %q", result.TestOutcomes[0].Error)
	}
}

func TestExecEvaluate_Timeout(t *testing.T) {
	requirePython(t)

	problem := models.Problem{
		ID:           2,
		FunctionName: "spin",
		Tests:        []models.TestCase{{Input: "", Expected: "None"}},
	}

	ev := NewExecEvaluator("python3", time.Second, testLogger())
	result, err := ev.Evaluate(context.Background(), problem, "def spin():\n    while True:\n        pass\n")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for a hanging solution")
	}
	if !strings.Contains(result.TestOutcomes[0].Error, "timed out") {
		t.Errorf("Expected timeout error, got %q", result.TestOutcomes[0].Error)
	}
}

func TestExecEvaluate_EmptyCode(t *testing.T) {
	ev := NewExecEvaluator("python3", time.Second, testLogger())
	if _, err := ev.Evaluate(context.Background(), addProblem(), "   \n"); err == nil {
		t.Error("Expected error for empty code")
	}
}

func TestExecEvaluate_NoTests(t *testing.T) {
	ev := NewExecEvaluator("python3", time.Second, testLogger())
	problem := models.Problem{ID: 3, FunctionName: "f"}
	if _, err := ev.Evaluate(context.Background(), problem, "def f():\n    pass\n"); err == nil {
		t.Error("Expected error for a problem without test cases")
	}
}

func TestExecEvaluate_Cancelled(t *testing.T) {
	requirePython(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := NewExecEvaluator("python3", time.Second, testLogger())
	if _, err := ev.Evaluate(ctx, addProblem(), "def add(a, b):\n    return a + b\n"); err == nil {
		t.Error("Expected error when the context is already cancelled")
	}
}
