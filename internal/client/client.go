// Package client talks to a running newswire server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lazypower/newswire/internal/api"
)

const (
	defaultServerURL = "http://127.0.0.1:37780"
	httpTimeout      = 10 * time.Second
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   api.Error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body.Error)
}

// Client talks to the newswire server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL uses NEWSWIRE_URL,
// falling back to http://127.0.0.1:37780.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("NEWSWIRE_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// PostItem submits one record in the import format.
func (c *Client) PostItem(ctx context.Context, record []byte) (*api.IngestResponse, error) {
	var out api.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/items", record, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Feed fetches a device's feed. limit <= 0 uses the server default.
func (c *Client) Feed(ctx context.Context, deviceID string, limit int) (*api.Feed, error) {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/feed"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.Feed
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunTask asks the server to queue a maintenance task.
func (c *Client) RunTask(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(name), nil, nil)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	var h api.Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return false
	}
	return h.Status == "ok"
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		serr := &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		if json.Unmarshal(data, &serr.Body) != nil || serr.Body.Error == "" {
			serr.Body.Error = strings.TrimSpace(string(data))
		}
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
