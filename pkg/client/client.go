// Package client talks to a running agent-dashboard server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

const (
	// HealthTimeout bounds the health check.
	HealthTimeout = 500 * time.Millisecond
	// RequestTimeout bounds ordinary requests.
	RequestTimeout = 10 * time.Second
)

// Client is a small JSON client for the dashboard API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for the server listening on host:port.
func New(host string, port int) *Client {
	return NewWithURL(BaseURL(host, port))
}

// BaseURL returns the URL of a server bound to host:port. A wildcard or
// empty host is reached through loopback.
func BaseURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// NewWithURL returns a client for the server at baseURL.
func NewWithURL(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: RequestTimeout},
	}
}

// IsServerRunning reports whether a dashboard answers on host:port.
func IsServerRunning(host string, port int) bool {
	return New(host, port).Healthy(context.Background())
}

// Healthy reports whether the server's health endpoint answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// GET fetches path and decodes the JSON body into out.
func (c *Client) GET(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// POST sends body as JSON to path and decodes the response into out. Either
// may be nil.
func (c *Client) POST(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Sessions fetches the current session list.
func (c *Client) Sessions(ctx context.Context) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	err := c.GET(ctx, "/api/sessions", &out)
	return out, err
}

// Org fetches the current org tree.
func (c *Client) Org(ctx context.Context) (models.OrgTree, error) {
	var out models.OrgTree
	err := c.GET(ctx, "/api/org", &out)
	return out, err
}

// DismissResult is the server's answer to a dismissal.
type DismissResult struct {
	Dismissed string `json:"dismissed"`
	Added     bool   `json:"added"`
}

// Dismiss asks the server to hide key.
func (c *Client) Dismiss(ctx context.Context, key string) (DismissResult, error) {
	var out DismissResult
	err := c.POST(ctx, "/api/dismiss/"+url.PathEscape(key), nil, &out)
	return out, err
}

// Dismiss asks the server on host:port to hide key.
func Dismiss(host string, port int, key string) (DismissResult, error) {
	return New(host, port).Dismiss(context.Background(), key)
}

// apiError is the error body returned by the server.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
