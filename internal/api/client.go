package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ameen-91/exray/internal/models"
)

const (
	// DefaultTimeout is the budget for ordinary calls.
	DefaultTimeout = 10 * time.Second
	// listTimeout covers run list and detail fetches, which may make
	// the backend round-trip to Argo for every non-terminal run.
	listTimeout = 15 * time.Second
	// slowTimeout covers log fetches, result resolution, and uploads.
	slowTimeout = 20 * time.Second

	// DefaultLogTail matches the backend's default tail length.
	DefaultLogTail = 200

	maxBodyBytes = 4 << 20
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the ExRay backend, e.g. "http://localhost:8000".
	BaseURL string

	// HTTPClient is an optional custom HTTP client. Timeouts are
	// enforced per call via context, so the client itself carries none.
	HTTPClient *http.Client

	// Timeout overrides the default per-call budget. Known-slow
	// operations always use their larger operation-specific budget.
	Timeout time.Duration
}

// Client talks to the ExRay workflows backend. All methods are safe
// for concurrent use and bound every request to a time budget.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		timeout: timeout,
	}
}

// BaseURL returns the backend root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// budget picks the larger of the client default and an
// operation-specific floor.
func (c *Client) budget(floor time.Duration) time.Duration {
	if c.timeout > floor {
		return c.timeout
	}
	return floor
}

// do issues a request under the given budget and returns the response
// body. The deadline timer is released on every exit path. Non-2xx
// responses become *StatusError; an expired budget becomes
// *TimeoutError.
func (c *Client) do(ctx context.Context, op string, req *http.Request, budget time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: op, Budget: budget}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: op, Budget: budget}
		}
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, budget time.Duration, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}

	body, err := c.do(ctx, op, req, budget)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// ListRuns fetches all known runs. When force is set the backend is
// asked to bypass its cached statuses and re-poll Argo.
func (c *Client) ListRuns(ctx context.Context, force bool) ([]models.Run, error) {
	query := url.Values{}
	if force {
		query.Set("refresh", "true")
	}
	var payload struct {
		Runs []models.Run `json:"runs"`
	}
	if err := c.getJSON(ctx, "list runs", "/runs", query, c.budget(listTimeout), &payload); err != nil {
		return nil, err
	}
	return payload.Runs, nil
}

// GetRun fetches a single run by id.
func (c *Client) GetRun(ctx context.Context, runID string, force bool) (*models.Run, error) {
	query := url.Values{}
	if force {
		query.Set("refresh", "true")
	}
	var run models.Run
	if err := c.getJSON(ctx, "get run", "/runs/"+url.PathEscape(runID), query, c.budget(listTimeout), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ResultLocation is the response of GET /runs/{id}/result.
type ResultLocation struct {
	RunID       string `json:"run_id"`
	DownloadURL string `json:"download_url"`
}

// ResolveResult asks the backend for a presigned download URL for a
// completed run's output.
func (c *Client) ResolveResult(ctx context.Context, runID string) (*ResultLocation, error) {
	var loc ResultLocation
	if err := c.getJSON(ctx, "resolve result", "/runs/"+url.PathEscape(runID)+"/result", nil, c.budget(slowTimeout), &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// FetchLogs retrieves the raw aggregated log text for a run. A
// non-positive tail falls back to the backend default.
func (c *Client) FetchLogs(ctx context.Context, runID string, tail int) (string, error) {
	if tail <= 0 {
		tail = DefaultLogTail
	}
	query := url.Values{"tail": {strconv.Itoa(tail)}}
	endpoint := c.baseURL + "/runs/" + url.PathEscape(runID) + "/logs?" + query.Encode()

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("fetch logs: build request: %w", err)
	}
	body, err := c.do(ctx, "fetch logs", req, c.budget(slowTimeout))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Health checks backend connectivity to Argo and MinIO.
func (c *Client) Health(ctx context.Context) (*models.HealthReport, error) {
	var report models.HealthReport
	if err := c.getJSON(ctx, "health check", "/health", nil, c.budget(DefaultTimeout), &report); err != nil {
		return nil, err
	}
	return &report, nil
}
