// Package client is a Go client for the nestegg HTTP API.
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
	"strings"
	"time"
)

// ErrNotFound is matched by errors for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a problem response returned by the server.
type APIError struct {
	Status int          `json:"status"`
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s", e.Status, e.Title)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	for _, fe := range e.Errors {
		msg += fmt.Sprintf("; %s %s", fe.Field, fe.Message)
	}
	return msg
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client talks to one nestegg server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// Health returns the server health report. A starting server answers 503
// with a report; it is returned without error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/health", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

// Categories lists goal categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Stats returns the summary across all goals.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListGoals lists goals matching filter. An empty filter matches all.
func (c *Client) ListGoals(ctx context.Context, filter string) ([]Goal, error) {
	path := "/api/v1/goals"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	var out struct {
		Goals []Goal `json:"goals"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Goals, nil
}

// Goal fetches one goal.
func (c *Client) Goal(ctx context.Context, id string) (*Goal, error) {
	var g Goal
	if err := c.do(ctx, http.MethodGet, "/api/v1/goals/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGoal creates a goal.
func (c *Client) CreateGoal(ctx context.Context, params GoalParams) (*Goal, error) {
	var out struct {
		Goal Goal `json:"goal"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/goals", params, &out); err != nil {
		return nil, err
	}
	return &out.Goal, nil
}

// UpdateGoal applies a sparse update.
func (c *Client) UpdateGoal(ctx context.Context, id string, patch GoalPatch) (*Goal, error) {
	var out struct {
		Goal Goal `json:"goal"`
	}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/goals/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out.Goal, nil
}

// DeleteGoal deletes a goal and its transactions.
func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/goals/"+url.PathEscape(id), nil, nil)
}

// AddTransaction records a transaction and returns it with the updated goal.
func (c *Client) AddTransaction(ctx context.Context, goalID string, params TransactionParams) (*Transaction, *Goal, error) {
	var out struct {
		Transaction Transaction `json:"transaction"`
		Goal        Goal        `json:"goal"`
	}
	path := "/api/v1/goals/" + url.PathEscape(goalID) + "/transactions"
	if err := c.do(ctx, http.MethodPost, path, params, &out); err != nil {
		return nil, nil, err
	}
	return &out.Transaction, &out.Goal, nil
}

// DeleteTransaction removes a transaction and returns the updated goal.
func (c *Client) DeleteTransaction(ctx context.Context, goalID, txID string) (*Goal, error) {
	var out struct {
		Goal Goal `json:"goal"`
	}
	path := "/api/v1/goals/" + url.PathEscape(goalID) + "/transactions/" + url.PathEscape(txID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Goal, nil
}

// Export returns the versioned export document.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/export", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Import replaces every goal on the server with an export document and
// returns how many goals it held.
func (c *Client) Import(ctx context.Context, doc []byte) (int, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/v1/import", bytes.NewReader(doc), "application/json")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	var out struct {
		Imported int `json:"imported"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode import response: %w", err)
	}
	return out.Imported, nil
}

// do sends body as JSON and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var (
		r           io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, r, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send sends an authenticated request.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return c.http.Do(req)
}

// checkStatus turns a non-2xx response into an *APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Title == "" {
		apiErr.Title = http.StatusText(resp.StatusCode)
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}
