// Package chasebtc is the Go SDK for the chasebtc server: HTTP and gRPC
// clients sharing one set of wire types.
package chasebtc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chasebtc api: %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the chase-server HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chasebtc API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict calls GET /predict.
func (c *Client) Predict(ctx context.Context, p PredictParams) (*PredictResponse, error) {
	var out PredictResponse
	if err := c.do(ctx, http.MethodGet, "/predict", p.Query(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backtest calls GET /backtest.
func (c *Client) Backtest(ctx context.Context, p BacktestParams) (*BacktestResponse, error) {
	var out BacktestResponse
	if err := c.do(ctx, http.MethodGet, "/backtest", p.Query(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update calls POST /update, rebuilding the server's feature file.
func (c *Client) Update(ctx context.Context) (*UpdateResponse, error) {
	var out UpdateResponse
	if err := c.do(ctx, http.MethodPost, "/update", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
