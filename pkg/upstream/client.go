// Package upstream fetches the billing feed and per-message reports from the
// external billing service.
//
// API Contract:
//
//	GET {base}/messages/current-period
//	Response: {"messages": [{"id": ..., "timestamp": ..., "text": "...", "report_id": ...}]}
//
//	GET {base}/reports/{report_id}
//	Response: {"name": "...", "credit_cost": 12.5}
//	404 when the report does not exist.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/meter/pkg/metrics"
)

// DefaultBaseURL is the production billing service.
const DefaultBaseURL = "https://owpublic.blob.core.windows.net/tech-task"

// DefaultTimeout bounds each upstream request.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// ErrNotFound is returned when the upstream resource does not exist.
var ErrNotFound = errors.New("upstream resource not found")

// UpstreamError is any upstream failure other than not-found: transport
// errors, timeouts, non-2xx responses and undecodable bodies.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsNotFound returns true if err signals a missing upstream resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Client talks to the billing service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.Collector
}

// ClientConfig configures the upstream client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Collector
}

// NewClient creates a new upstream client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    cfg.Metrics,
	}
}

// getJSON issues a GET for path and decodes the JSON body into result.
// A 404 yields ErrNotFound; everything else that fails yields *UpstreamError.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, result any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveUpstream(endpoint, outcome(err), time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &UpstreamError{Op: endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: endpoint, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", endpoint, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &UpstreamError{Op: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
