package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edgebench/edgebench/internal/util"
)

// eventBuffer decouples the SSE reader from the consumer; arrival times are
// stamped before the send, so a slow consumer does not skew latency samples
const eventBuffer = 64

// streamDelta represents the delta content in a streaming response chunk
type streamDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"` // For reasoning models
	ToolCalls        []toolCallDelta `json:"tool_calls,omitempty"`
}

// toolCallDelta is a fragment of a tool call; arguments accumulate across
// chunks and are assembled before the event is emitted
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// streamChoice represents a choice in a streaming response chunk
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// streamChunk represents a single chunk in the streaming response
type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Stream opens a streaming chat completion and delivers its output on the
// returned channel. The channel is closed when the stream ends, after an
// EventFinal on clean completion or an EventError on mid-stream failure.
// Cancelling the context ends the generation at the next token boundary
// without a trailing event.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := c.rateLimiterPool.Wait(ctx, req.ModelID, c.cfg.RateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	genCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.cfg.GenerationTimeoutSeconds > 0 {
		genCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.GenerationTimeoutSeconds)*time.Second)
	}

	httpResp, err := c.openStream(genCtx, body, req.ModelID)
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer cancel()
		c.pumpEvents(genCtx, httpResp.Body, events)
	}()
	return events, nil
}

// openStream sends the request and retries retryable failures until the
// engine accepts it. Once a stream is open no retries happen; a mid-stream
// failure surfaces as an EventError.
func (c *Client) openStream(ctx context.Context, body []byte, modelID string) (*http.Response, error) {
	var lastErr error
	maxAttempts := c.maxRetries()
	for attempt := 0; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBeforeRetry(ctx, attempt, maxAttempts, lastErr, modelID); err != nil {
				return nil, err
			}
		}

		resp, err := c.doStreamingRequest(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doStreamingRequest(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint("chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, true)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
		return nil, apiErrorFromResponse(httpResp.StatusCode, bodyBytes)
	}

	return httpResp, nil
}

// pumpEvents reads the SSE stream and forwards events until the stream ends
// or the context is cancelled.
func (c *Client) pumpEvents(ctx context.Context, body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer func() {
		if err := body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	bufp := getScanBuf()
	defer putScanBuf(bufp)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(*bufp, maxStreamLineBytes)

	var content strings.Builder
	var reasoning strings.Builder
	var finishReason string
	var usage Usage
	var calls toolCallAssembler

	for scanner.Scan() {
		line := scanner.Text()

		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		// SSE format: "data: {...}"
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("Failed to parse stream chunk",
				"error", err,
				"data", util.TruncateString(data, 200))
			continue
		}

		// Usage arrives on a trailing chunk when the engine honors
		// stream_options.include_usage
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		arrivedAt := time.Now()

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if !send(ctx, events, Event{Type: EventToken, Text: choice.Delta.Content, ArrivedAt: arrivedAt}) {
				return
			}
		}

		// Reasoning deltas are real generated tokens; they count for
		// latency sampling but land in the reasoning channel
		if choice.Delta.ReasoningContent != "" {
			reasoning.WriteString(choice.Delta.ReasoningContent)
			if !send(ctx, events, Event{Type: EventToken, Text: choice.Delta.ReasoningContent, Reasoning: true, ArrivedAt: arrivedAt}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			calls.add(tc)
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(ctx, events, Event{Type: EventError, Err: fmt.Errorf("stream reading error: %w", err)})
		return
	}
	if ctx.Err() != nil {
		return
	}

	for _, tc := range calls.assembled() {
		if !send(ctx, events, Event{Type: EventToolCall, ToolCall: &tc}) {
			return
		}
	}

	send(ctx, events, Event{Type: EventFinal, Final: &Final{
		Text:         content.String(),
		Reasoning:    reasoning.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}})
}

// send delivers an event unless the context ends first
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// toolCallAssembler reassembles tool calls from their streamed fragments
type toolCallAssembler struct {
	calls []ToolCall
}

func (a *toolCallAssembler) add(delta toolCallDelta) {
	for len(a.calls) <= delta.Index {
		a.calls = append(a.calls, ToolCall{Type: "function"})
	}
	tc := &a.calls[delta.Index]
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Function.Name != "" {
		tc.Function.Name = delta.Function.Name
	}
	tc.Function.Arguments += delta.Function.Arguments
}

// assembled returns the completed tool calls, skipping fragments that never
// received a name
func (a *toolCallAssembler) assembled() []ToolCall {
	out := make([]ToolCall, 0, len(a.calls))
	for _, tc := range a.calls {
		if tc.Function.Name == "" {
			continue
		}
		out = append(out, tc)
	}
	return out
}
