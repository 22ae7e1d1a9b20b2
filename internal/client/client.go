// Package client provides a REST client for the quizsync backend.
package client

import (
	"bytes"
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

	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var (
	// ErrTransient marks failures worth retrying: transport errors and 5xx responses.
	ErrTransient = errors.New("transient backend failure")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s - %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Is lets errors.Is match ErrTransient and ErrNotFound by status class.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Code >= 500
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// Client is a REST client for the quizsync backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request timings into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics returns the collector the client records into, if any.
func (c *Client) Metrics() *metrics.Collector {
	return c.metrics
}

// RawResponse is an undecoded backend response.
type RawResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// send performs a request and returns the raw response for any status.
// Only transport failures are returned as errors.
func (c *Client) send(ctx context.Context, method, path string, body any) (*RawResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execute request: %w", ctx.Err())
		}
		return nil, fmt.Errorf("execute request: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", ErrTransient, err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// do performs a request and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
	}
	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) timed(op string, fn func() error) error {
	return c.metrics.Time(op, fn)
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateForUnit submits a generation request. The body is returned undecoded
// because its shape varies between synchronous and queued execution.
// 5xx responses are returned as errors matching ErrTransient.
func (c *Client) GenerateForUnit(ctx context.Context, req models.GenerateRequest) (*RawResponse, error) {
	var resp *RawResponse
	err := c.timed(metrics.OpSubmit, func() error {
		var err error
		resp, err = c.send(ctx, http.MethodPost, "/api/tasks/generate-for-unit", req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// TasksByUnit returns all current tasks of a unit.
func (c *Client) TasksByUnit(ctx context.Context, unitID string) ([]models.Task, error) {
	var tasks []models.Task
	err := c.timed(metrics.OpPollFetch, func() error {
		return c.do(ctx, http.MethodGet, "/api/units/"+url.PathEscape(unitID)+"/tasks", nil, &tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns a single task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := c.timed(metrics.OpTaskFetch, func() error {
		return c.do(ctx, http.MethodGet, taskPath(id), nil, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// =============================================================================
// EVALUATION
// =============================================================================

// EvaluateAnswer asks the backend to evaluate an answer.
func (c *Client) EvaluateAnswer(ctx context.Context, taskID string, req models.EvaluateRequest) (*models.EvaluateResponse, error) {
	var resp models.EvaluateResponse
	err := c.timed(metrics.OpEvaluate, func() error {
		return c.do(ctx, http.MethodPost, taskPath(taskID)+"/evaluate", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordAnswer stores an answer event for a locally evaluated answer.
func (c *Client) RecordAnswer(ctx context.Context, event models.AnswerEvent) error {
	return c.do(ctx, http.MethodPost, taskPath(event.TaskID)+"/answers", event, nil)
}

// =============================================================================
// EDITING
// =============================================================================

// EditTask applies a partial update and returns the updated task.
func (c *Client) EditTask(ctx context.Context, id string, update models.TaskUpdate) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id), update, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask soft-deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id string, userID *string) error {
	path := taskPath(id)
	if userID != nil {
		path += "?user_id=" + url.QueryEscape(*userID)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// HISTORY
// =============================================================================

// TaskVersions lists the versions of a task in ascending order.
func (c *Client) TaskVersions(ctx context.Context, taskID string) ([]models.TaskVersion, error) {
	var versions []models.TaskVersion
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/versions", nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// CompareVersions compares two versions of a task, oriented from version1 to version2.
func (c *Client) CompareVersions(ctx context.Context, taskID string, version1, version2 int) (*models.Comparison, error) {
	q := url.Values{}
	q.Set("version1", strconv.Itoa(version1))
	q.Set("version2", strconv.Itoa(version2))

	var cmp models.Comparison
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/compare?"+q.Encode(), nil, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// ChangeHistory returns the most recent change events of a task, newest first.
func (c *Client) ChangeHistory(ctx context.Context, taskID string, limit int) ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/change-history"+limitQuery(limit), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AnswerHistory returns the most recent answer events of a task, newest first.
func (c *Client) AnswerHistory(ctx context.Context, taskID string, limit int) ([]models.AnswerEvent, error) {
	var events []models.AnswerEvent
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/answer-history"+limitQuery(limit), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// =============================================================================
// ANALYTICS
// =============================================================================

// RepositoryStatistics returns the aggregate statistics of a repository.
func (c *Client) RepositoryStatistics(ctx context.Context, repositoryID string) (*models.RepositoryStatistics, error) {
	var stats models.RepositoryStatistics
	if err := c.do(ctx, http.MethodGet, repoPath(repositoryID)+"/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RepositoryEvents returns the raw event log of a repository.
func (c *Client) RepositoryEvents(ctx context.Context, repositoryID string) (*models.RepositoryEvents, error) {
	var events models.RepositoryEvents
	if err := c.do(ctx, http.MethodGet, repoPath(repositoryID)+"/events", nil, &events); err != nil {
		return nil, err
	}
	return &events, nil
}

// TaskStatistics returns the aggregates of a single task.
func (c *Client) TaskStatistics(ctx context.Context, taskID string) (*models.TaskStatistics, error) {
	var stats models.TaskStatistics
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecordPageVisit reports time spent on a page.
func (c *Client) RecordPageVisit(ctx context.Context, visit models.PageVisit) error {
	return c.do(ctx, http.MethodPost, "/api/page-visits", visit, nil)
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func repoPath(id string) string {
	return "/api/repositories/" + url.PathEscape(id)
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
