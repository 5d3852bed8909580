package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/edgebench/edgebench/pkg/models"
)

// Provider supplies benchmark problems for a run. Implementations return
// problems ordered by ascending ID; IDs may be sparse.
type Provider interface {
	ProblemsInRange(startID, endID int) ([]models.Problem, error)
}

// maxLineBytes bounds a single JSONL record; long problem descriptions with
// embedded test fixtures can run large.
const maxLineBytes = 4 * 1024 * 1024

// FileProvider loads a JSONL problem set into memory once and serves range
// queries from the sorted slice.
type FileProvider struct {
	problems []models.Problem
	logger   *slog.Logger
}

// NewFileProvider reads and validates the problem file at path.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var problems []models.Problem
	seen := make(map[int]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p models.Problem
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("failed to parse dataset line %d: %w", lineNo, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate problem id %d at line %d", p.ID, lineNo)
		}
		seen[p.ID] = true
		problems = append(problems, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	sort.Slice(problems, func(i, j int) bool { return problems[i].ID < problems[j].ID })

	logger.Info("Loaded problem dataset", "path", path, "problems", len(problems))

	return &FileProvider{
		problems: problems,
		logger:   logger.With("component", "dataset"),
	}, nil
}

// ProblemsInRange returns problems with startID <= ID <= endID, ordered by ID.
func (p *FileProvider) ProblemsInRange(startID, endID int) ([]models.Problem, error) {
	if endID < startID {
		return nil, fmt.Errorf("invalid range [%d, %d]", startID, endID)
	}

	lo := sort.Search(len(p.problems), func(i int) bool { return p.problems[i].ID >= startID })
	hi := sort.Search(len(p.problems), func(i int) bool { return p.problems[i].ID > endID })

	out := make([]models.Problem, hi-lo)
	copy(out, p.problems[lo:hi])
	return out, nil
}

// Count returns the total number of loaded problems.
func (p *FileProvider) Count() int {
	return len(p.problems)
}
