// Package client is a Go client for the prior-art search HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const Version = "0.1.0"

// AnalyzePath is the idea analysis endpoint.
const AnalyzePath = "/api/analyze-idea"

// ErrInvalidConfig is returned by NewClient for an unusable base URL.
var ErrInvalidConfig = errors.New("priorart: invalid client configuration")

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Client calls a priorart-server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// AnalyzeResult is the analysis envelope returned by the server.
type AnalyzeResult struct {
	Status       string        `json:"status"`
	ChatResponse string        `json:"chatResponse,omitempty"`
	PatentList   []PatentEntry `json:"patentList"`
	Message      string        `json:"message,omitempty"`
	SearchQuery  string        `json:"searchQuery,omitempty"`
	RunID        string        `json:"runId,omitempty"`
	ReportHTML   string        `json:"reportHtml,omitempty"`
	Degraded     int           `json:"degraded"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	Stage        string        `json:"stage,omitempty"`
}

// PatentEntry is one scored prior-art candidate. RelevanceScore is nil
// when the server could not score the patent.
type PatentEntry struct {
	MatchStatus     string   `json:"matchstatus"`
	PatentID        string   `json:"patentId"`
	Title           string   `json:"title"`
	ApplicationDate string   `json:"applicationDate"`
	Applicant       string   `json:"applicant"`
	Summary         string   `json:"summary"`
	RelevanceScore  *float64 `json:"relevanceScore"`
}

// APIError is a non-2xx response. Result is set when the body was an
// analysis envelope, which is the case for failed pipeline runs.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	Result     *AnalyzeResult

	retryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("priorart: HTTP %d: %s [request_id=%s]", e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsBadRequest() bool  { return e.StatusCode == http.StatusBadRequest }
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrInvalidConfig
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid baseURL: %v", ErrInvalidConfig, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: baseURL scheme must be http or https", ErrInvalidConfig)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// A full run makes many model calls.
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		userAgent:    fmt.Sprintf("priorart-go-client/%s", Version),
		logger:       noopLogger{},
		retryMax:     2,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AnalyzeIdea runs one search. Clarification and success are returned as
// results; a failed run is an *APIError whose Result holds the envelope.
func (c *Client) AnalyzeIdea(ctx context.Context, ideaText string) (*AnalyzeResult, error) {
	var out AnalyzeResult
	if err := c.do(ctx, http.MethodPost, AnalyzePath, map[string]string{"idea_text": ideaText}, &out); err != nil {
		return nil, err
	}
	if out.PatentList == nil {
		out.PatentList = []PatentEntry{}
	}
	return &out, nil
}

// Ready reports whether the server and its dependencies are ready.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			wait := c.calculateBackoff(attempt)
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.retryAfter > 0 {
				wait = apiErr.retryAfter
			}
			c.logger.Debugf("retry attempt %d after %v", attempt, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		requestID := uuid.NewString()
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("request failed: %v", err)
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 400 {
			apiErr := newAPIError(resp, respBody, requestID)
			lastErr = apiErr
			if shouldRetry(resp.StatusCode) {
				continue
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func newAPIError(resp *http.Response, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		apiErr.retryAfter = time.Duration(s) * time.Second
	}

	var envelope AnalyzeResult
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Status == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Message = envelope.Message
	if apiErr.Message == "" {
		apiErr.Message = envelope.Status
	}
	if envelope.RunID != "" {
		apiErr.Result = &envelope
	}
	return apiErr
}

// shouldRetry covers throttling and runs the server abandoned. Other
// failures of a run are not retried; each run is expensive.
func shouldRetry(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	if q := int64(backoff / 4); q > 0 {
		backoff += time.Duration(rand.Int63n(q))
	}
	return backoff
}
