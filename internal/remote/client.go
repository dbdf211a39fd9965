// Package remote implements the HTTP client for the remote habit store.
// The remote server assigns last_modified timestamps; its clock is the
// authoritative one for last-writer-wins comparisons.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
	"github.com/sethvargo/go-retry"
)

// Client talks to the remote habit store over HTTP with bearer auth.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff; 4xx responses are permanent.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	backoff func() retry.Backoff
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
		},
	}
}

type deltaResponse struct {
	Records []types.HabitRecord `json:"records"`
}

// FetchChangesSince returns the remote records modified after the
// checkpoint. A zero checkpoint fetches the full window.
func (c *Client) FetchChangesSince(ctx context.Context, since time.Time) ([]types.HabitRecord, error) {
	path := "/api/v1/habits/delta"
	if !since.IsZero() {
		path += "?since=" + since.UTC().Format(time.RFC3339Nano)
	}

	var delta deltaResponse
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, path, nil, &delta)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch remote changes: %w", err)
	}
	return delta.Records, nil
}

// Upsert pushes one record to the remote store and returns the stored
// copy carrying the server-assigned last_modified timestamp.
func (c *Client) Upsert(ctx context.Context, rec *types.HabitRecord) (*types.HabitRecord, error) {
	var stored types.HabitRecord
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		return c.call(ctx, http.MethodPut, "/api/v1/habits/"+rec.ID, rec, &stored)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return &stored, nil
}

// Ping checks connectivity to the remote store.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.call(ctx, http.MethodGet, "/api/v1/health", nil, nil); err != nil {
		return fmt.Errorf("remote health check: %w", err)
	}
	return nil
}

// call performs one authenticated JSON request. Server-side (5xx) and
// transport failures are marked retryable for the backoff loop.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return retry.RetryableError(fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
