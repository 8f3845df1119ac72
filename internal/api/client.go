// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotRunning is returned by Client when nothing answers at the control
// address.
var ErrNotRunning = errors.New("no supervisor is listening on the control address")

// Client talks to a running supervisor's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for addr ("host:port" or a full URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// envelope mirrors APIResponse with the data left undecoded.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

// Live checks that the supervisor is up.
func (c *Client) Live(ctx context.Context) error {
	var out LiveResponse
	return c.do(ctx, http.MethodGet, "/api/v1/health/live", &out)
}

// Status fetches the current state of every service.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	var out StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop asks the supervisor to shut down. It does not wait for the
// shutdown to finish.
func (c *Client) Stop(ctx context.Context) error {
	var out StopResponse
	return c.do(ctx, http.MethodPost, "/api/v1/stop", &out)
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if env.Status != "success" {
		if env.Error != nil {
			return fmt.Errorf("control API: %s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("control API: HTTP %d", resp.StatusCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
