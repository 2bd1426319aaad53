package cloudapi

import (
	"bytes"
	"cloudjobs/internal/apperrors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBodySize bounds how much of an error response is read for its message.
const maxErrorBodySize = 64 << 10

// HTTPClient implements API over the provisioning REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.With("component", "cloudapi"),
	}
}

// HTTPError is a non-2xx answer from the provisioning API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type taskAccepted struct {
	TaskID string `json:"taskId"`
}

// ListFixedPlans implements API.
func (c *HTTPClient) ListFixedPlans(ctx context.Context, creds Credentials) ([]Plan, error) {
	var out struct {
		Plans []Plan `json:"plans"`
	}
	if err := c.do(ctx, creds, "cloudapi.listFixedPlans", http.MethodGet, "/fixed/plans", nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

// ListFixedSubscriptions implements API.
func (c *HTTPClient) ListFixedSubscriptions(ctx context.Context, creds Credentials) ([]Subscription, error) {
	var out struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := c.do(ctx, creds, "cloudapi.listFixedSubscriptions", http.MethodGet, "/fixed/subscriptions", nil, &out); err != nil {
		return nil, err
	}
	return out.Subscriptions, nil
}

// GetFixedSubscription implements API.
func (c *HTTPClient) GetFixedSubscription(ctx context.Context, creds Credentials, id int) (*Subscription, error) {
	var out Subscription
	path := "/fixed/subscriptions/" + strconv.Itoa(id)
	if err := c.do(ctx, creds, "cloudapi.getFixedSubscription", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFreeSubscription implements API.
func (c *HTTPClient) CreateFreeSubscription(ctx context.Context, creds Credentials, planID int, name string) (*Task, error) {
	body := map[string]any{"name": name, "planId": planID}
	var out taskAccepted
	if err := c.do(ctx, creds, "cloudapi.createFreeSubscription", http.MethodPost, "/fixed/subscriptions", body, &out); err != nil {
		return nil, err
	}
	return acceptedTask(out, "cloudapi.createFreeSubscription")
}

// ListFixedDatabases implements API.
func (c *HTTPClient) ListFixedDatabases(ctx context.Context, creds Credentials, subscriptionID int) ([]Database, error) {
	var out struct {
		Subscription struct {
			ID        int        `json:"subscriptionId"`
			Databases []Database `json:"databases"`
		} `json:"subscription"`
	}
	path := fmt.Sprintf("/fixed/subscriptions/%d/databases", subscriptionID)
	if err := c.do(ctx, creds, "cloudapi.listFixedDatabases", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	dbs := out.Subscription.Databases
	for i := range dbs {
		dbs[i].SubscriptionID = subscriptionID
	}
	return dbs, nil
}

// GetFixedDatabase implements API.
func (c *HTTPClient) GetFixedDatabase(ctx context.Context, creds Credentials, subscriptionID, databaseID int) (*Database, error) {
	var out Database
	path := fmt.Sprintf("/fixed/subscriptions/%d/databases/%d", subscriptionID, databaseID)
	if err := c.do(ctx, creds, "cloudapi.getFixedDatabase", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	out.SubscriptionID = subscriptionID
	return &out, nil
}

// CreateFreeDatabase implements API.
func (c *HTTPClient) CreateFreeDatabase(ctx context.Context, creds Credentials, subscriptionID int, name string) (*Task, error) {
	body := map[string]any{"name": name, "protocol": "stack"}
	var out taskAccepted
	path := fmt.Sprintf("/fixed/subscriptions/%d/databases", subscriptionID)
	if err := c.do(ctx, creds, "cloudapi.createFreeDatabase", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return acceptedTask(out, "cloudapi.createFreeDatabase")
}

// GetTask implements API.
func (c *HTTPClient) GetTask(ctx context.Context, creds Credentials, taskID string) (*Task, error) {
	var out Task
	if err := c.do(ctx, creds, "cloudapi.getTask", http.MethodGet, "/tasks/"+taskID, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = taskID
	}
	return &out, nil
}

func acceptedTask(out taskAccepted, op string) (*Task, error) {
	if out.TaskID == "" {
		return nil, apperrors.Unexpected(op, "request accepted without a task id")
	}
	return &Task{ID: out.TaskID, Status: TaskReceived}, nil
}

// do performs one request and decodes the JSON answer into out.
func (c *HTTPClient) do(ctx context.Context, creds Credentials, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal(op, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Internal(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", creds.APIKey)
	req.Header.Set("x-api-secret-key", creds.APISecret)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Request failed", "op", op, "error", err, "duration", time.Since(start))
		if ctx.Err() != nil {
			return apperrors.Internal(op, ctx.Err())
		}
		return apperrors.Transient(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Unexpected(op, fmt.Sprintf("failed to decode response: %v", err))
	}
	return nil
}

// classify turns a non-2xx response into the matching taxonomy error.
func classify(op string, resp *http.Response) error {
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.Unauthorized(op, httpErr)
	case resp.StatusCode == http.StatusNotFound:
		return &apperrors.Error{
			Sentinel: apperrors.ErrNotFound,
			Message:  fmt.Sprintf("%s: %v", op, httpErr),
			Op:       op,
			Cause:    httpErr,
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return apperrors.Transient(op, httpErr)
	default:
		return apperrors.Internal(op, httpErr)
	}
}

// errorMessage extracts a description from the error payload if there is one.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   *struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != nil && payload.Error.Description != "" {
			return payload.Error.Description
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// Verify HTTPClient implements API
var _ API = (*HTTPClient)(nil)
