package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgebench/edgebench/internal/config"
	"github.com/edgebench/edgebench/pkg/models"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// DefaultMaxBackoffDuration caps a single backoff sleep
	DefaultMaxBackoffDuration = 120 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
)

// Client talks to an OpenAI-compatible inference engine. It implements
// Engine for the run scheduler and additionally offers non-streaming
// completions for the judge evaluator.
type Client struct {
	httpClient      *http.Client
	rateLimiterPool *RateLimiterPool
	logger          *slog.Logger
	cfg             config.EngineSettings
	apiKey          string
	baseRetryDelay  time.Duration
}

// NewClient creates a new engine client. An empty apiKey is valid for local
// engines that run without auth.
func NewClient(cfg config.EngineSettings, apiKey string, logger *slog.Logger) *Client {
	transport := http.DefaultTransport
	if cfg.HTTPTimeoutSeconds > 0 {
		// Bound the wait for response headers only. A whole-request timeout
		// would kill long generations mid-stream.
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
		transport = t
	}

	return &Client{
		httpClient:      &http.Client{Transport: transport},
		rateLimiterPool: NewRateLimiterPool(),
		logger:          logger,
		cfg:             cfg,
		apiKey:          apiKey,
		baseRetryDelay:  DefaultBaseRetryDelay,
	}
}

// LoadModel checks that the engine serves the given model. Engines that load
// lazily treat the probe as a warm-up request.
func (c *Client) LoadModel(ctx context.Context, modelID string) error {
	endpoint := c.endpoint("models/" + url.PathEscape(modelID))

	var lastErr error
	maxAttempts := c.maxRetries()
	for attempt := 0; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBeforeRetry(ctx, attempt, maxAttempts, lastErr, modelID); err != nil {
				return err
			}
		}

		err := c.doProbe(ctx, endpoint, modelID)
		if err == nil {
			c.logger.Info("Model available", "model", modelID)
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doProbe(ctx context.Context, endpoint, modelID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, false)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if httpResp.StatusCode == http.StatusNotFound {
		return &APIError{
			Message:    fmt.Sprintf("model %q not served by engine", modelID),
			StatusCode: httpResp.StatusCode,
			Retryable:  false,
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return apiErrorFromResponse(httpResp.StatusCode, bodyBytes)
	}

	return nil
}

// Complete sends a non-streaming chat completion request. The run loop
// streams instead; this path serves the judge evaluator, which only needs
// the final text.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := c.rateLimiterPool.Wait(ctx, req.ModelID, c.cfg.RateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	maxAttempts := c.maxRetries()
	for attempt := 0; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBeforeRetry(ctx, attempt, maxAttempts, lastErr, req.ModelID); err != nil {
				return nil, err
			}
		}

		resp, err := c.doRequest(ctx, body)
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

func (c *Client) doRequest(ctx context.Context, body []byte) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint("chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, false)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned in response")
	}

	msg := resp.Choices[0].Message
	return &Completion{
		Text:         msg.Content,
		Reasoning:    msg.ReasoningContent,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        resp.Usage,
	}, nil
}

// buildRequest maps a Request onto the wire format. Mode shapes the body:
// tool_use advertises the builtin tool schemas.
func (c *Client) buildRequest(req Request, stream bool) chatRequest {
	wire := chatRequest{
		Model:       req.ModelID,
		Messages:    req.Messages,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxOutputTokens,
		N:           1,
		Stream:      stream,
	}
	if stream {
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if req.Mode == models.ModeToolUse {
		wire.Tools = BuiltinTools()
	}
	return wire
}

func (c *Client) endpoint(path string) string {
	endpoint := c.cfg.BaseURL
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint + path
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) maxRetries() int {
	if c.cfg.MaxRetries != 0 {
		return c.cfg.MaxRetries
	}
	return DefaultMaxRetries
}

// sleepBeforeRetry waits out the backoff for the given attempt, or returns
// early when the context ends.
func (c *Client) sleepBeforeRetry(ctx context.Context, attempt, maxAttempts int, lastErr error, modelID string) error {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay

	// For rate limit errors, use longer delays (3^n: 6s, 18s, 54s)
	if apiErr, ok := lastErr.(*APIError); ok && apiErr.StatusCode == http.StatusTooManyRequests {
		backoff = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attempt))) * c.baseRetryDelay
	}

	maxBackoff := DefaultMaxBackoffDuration
	if c.cfg.MaxBackoffSeconds > 0 {
		maxBackoff = time.Duration(c.cfg.MaxBackoffSeconds) * time.Second
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter := time.Duration(float64(backoff) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
	sleepDuration := backoff + jitter

	c.logger.Warn("Retrying engine request",
		"attempt", attempt,
		"max_retries", maxAttempts,
		"backoff", sleepDuration,
		"model", modelID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleepDuration):
		return nil
	}
}

func isRetryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Retryable
	}
	return false
}

func isStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

func apiErrorFromResponse(statusCode int, body []byte) *APIError {
	retryable := isStatusCodeRetryable(statusCode)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &APIError{
			Message:    errResp.Error.Message,
			StatusCode: statusCode,
			Type:       errResp.Error.Type,
			Code:       errResp.Error.Code,
			Retryable:  retryable,
		}
	}

	return &APIError{
		Message:    fmt.Sprintf("engine request failed with status %d: %s", statusCode, string(body)),
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}

// APIError represents an error returned by the engine
type APIError struct {
	Message    string
	StatusCode int
	Type       string
	Code       string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("engine error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("engine error: %s", e.Message)
}
