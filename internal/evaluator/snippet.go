package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgebench/edgebench/internal/util"
)

// maxSnippetOutputLen bounds the output returned to the model after a tool
// round; anything longer is noise in the follow-up prompt.
const maxSnippetOutputLen = 2000

// RunSnippet executes one standalone code snippet with the given interpreter
// command and returns its combined stdout and stderr, truncated. A non-zero
// exit is not an error: the model is expected to read the failure output. The
// error return covers setup failures, timeouts and cancellation only.
func RunSnippet(ctx context.Context, command string, timeout time.Duration, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("empty snippet")
	}

	dir, err := os.MkdirTemp("", "edgebench-tool-")
	if err != nil {
		return "", fmt.Errorf("failed to create snippet dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snippet.py")
	if err := os.WriteFile(path, []byte(code), 0600); err != nil {
		return "", fmt.Errorf("failed to write snippet: %w", err)
	}

	snippetCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(snippetCtx, command, path)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if snippetCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("snippet timed out after %s", timeout)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	text := strings.TrimSpace(output.String())
	if runErr != nil && text == "" {
		text = runErr.Error()
	}
	return util.TruncateString(text, maxSnippetOutputLen), nil
}
