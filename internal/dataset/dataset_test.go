package dataset

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problems.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

const sparseDataset = `{"id": 14, "description": "problem fourteen", "tests": [{"input": "1", "expected": "2"}]}
{"id": 11, "description": "problem eleven", "tests": []}

{"id": 20, "description": "problem twenty", "tests": []}
{"id": 12, "description": "problem twelve", "tests": []}
`

func TestProblemsInRange(t *testing.T) {
	path := writeDataset(t, sparseDataset)

	p, err := NewFileProvider(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	if p.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", p.Count())
	}

	tests := []struct {
		name    string
		start   int
		end     int
		wantIDs []int
	}{
		{
			name:    "full range with gaps",
			start:   11,
			end:     20,
			wantIDs: []int{11, 12, 14, 20},
		},
		{
			name:    "subrange",
			start:   12,
			end:     14,
			wantIDs: []int{12, 14},
		},
		{
			name:    "empty slice of sparse range",
			start:   15,
			end:     19,
			wantIDs: []int{},
		},
		{
			name:    "single id",
			start:   14,
			end:     14,
			wantIDs: []int{14},
		},
		{
			name:    "range outside dataset",
			start:   100,
			end:     200,
			wantIDs: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ProblemsInRange(tt.start, tt.end)
			if err != nil {
				t.Fatalf("ProblemsInRange() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ProblemsInRange() returned %d problems, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("ProblemsInRange()[%d].ID = %d, want %d", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestProblemsOrdered(t *testing.T) {
	path := writeDataset(t, sparseDataset)

	p, err := NewFileProvider(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	got, err := p.ProblemsInRange(0, 100)
	if err != nil {
		t.Fatalf("ProblemsInRange() error = %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Errorf("Problems not strictly ascending at index %d: %d then %d", i, got[i-1].ID, got[i].ID)
		}
	}
}

func TestInvalidRange(t *testing.T) {
	path := writeDataset(t, sparseDataset)

	p, err := NewFileProvider(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	if _, err := p.ProblemsInRange(20, 11); err == nil {
		t.Error("ProblemsInRange() expected error for inverted range")
	}
}

func TestMalformedLine(t *testing.T) {
	path := writeDataset(t, "{\"id\": 1, \"description\": \"ok\"}\nnot json at all\n")

	if _, err := NewFileProvider(path, testLogger()); err == nil {
		t.Error("NewFileProvider() expected error for malformed line")
	}
}

func TestDuplicateID(t *testing.T) {
	path := writeDataset(t, "{\"id\": 1, \"description\": \"a\"}\n{\"id\": 1, \"description\": \"b\"}\n")

	if _, err := NewFileProvider(path, testLogger()); err == nil {
		t.Error("NewFileProvider() expected error for duplicate id")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.jsonl"), testLogger()); err == nil {
		t.Error("NewFileProvider() expected error for missing file")
	}
}

func TestTestCasesParsed(t *testing.T) {
	path := writeDataset(t, sparseDataset)

	p, err := NewFileProvider(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	got, err := p.ProblemsInRange(14, 14)
	if err != nil {
		t.Fatalf("ProblemsInRange() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Tests) != 1 {
		t.Fatalf("Expected problem 14 with 1 test, got %+v", got)
	}
	if got[0].Tests[0].Input != "1" || got[0].Tests[0].Expected != "2" {
		t.Errorf("Test case = %+v, want input 1 expected 2", got[0].Tests[0])
	}
}
