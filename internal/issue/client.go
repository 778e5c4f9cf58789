// Package issue is a small GitHub REST client for the one issue that holds
// the status table. It performs no retries of its own; every call reports
// success or failure and the caller decides what to do next.
package issue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion     = "2022-11-28"
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

// Config describes the issue to talk to.
type Config struct {
	// BaseURL defaults to https://api.github.com.
	BaseURL string
	// Repository is "owner/name".
	Repository string
	Number     int
	Token      string

	HTTPClient *http.Client
	// Timeout bounds every single request. Defaults to 30s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client reads and replaces the body of one issue and posts comments on it.
type Client struct {
	issueURL   string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient validates cfg and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		return nil, fmt.Errorf("issue: base url must be http(s): %q", cfg.BaseURL)
	}
	owner, name, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("issue: repository must be owner/name, got %q", cfg.Repository)
	}
	if cfg.Number <= 0 {
		return nil, fmt.Errorf("issue: invalid issue number %d", cfg.Number)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("issue: token is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		issueURL:   fmt.Sprintf("%s/repos/%s/%s/issues/%d", base, owner, name, cfg.Number),
		token:      cfg.Token,
		httpClient: hc,
		timeout:    timeout,
		logger:     logger.With("component", "issue"),
	}, nil
}

// URL returns the API URL of the issue.
func (c *Client) URL() string { return c.issueURL }

type issueBody struct {
	Body *string `json:"body"`
}

// Fetch returns the current issue body. A non-2xx response yields a
// *FetchError.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	status, data, err := c.do(ctx, http.MethodGet, c.issueURL, nil)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", &FetchError{StatusCode: status, Message: errorMessage(data)}
	}
	var ib issueBody
	if err := json.Unmarshal(data, &ib); err != nil {
		return "", fmt.Errorf("issue: decoding issue: %w", err)
	}
	if ib.Body == nil {
		// GitHub reports an empty body as null
		return "", nil
	}
	return *ib.Body, nil
}

// Replace overwrites the whole issue body. Any non-2xx response is
// returned as an *APIError.
func (c *Client) Replace(ctx context.Context, body string) error {
	status, data, err := c.do(ctx, http.MethodPatch, c.issueURL, map[string]string{"body": body})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &APIError{Op: "replace", StatusCode: status, Message: errorMessage(data)}
	}
	c.logger.Debug("issue body replaced", "bytes", len(body))
	return nil
}

// Comment posts a new comment on the issue.
func (c *Client) Comment(ctx context.Context, body string) error {
	status, data, err := c.do(ctx, http.MethodPost, c.issueURL+"/comments", map[string]string{"body": body})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &APIError{Op: "comment", StatusCode: status, Message: errorMessage(data)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("issue: encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("issue: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("issue: %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("issue: reading response: %w", err)
	}
	c.logger.Debug("github request", "method", method, "status", resp.StatusCode)
	return resp.StatusCode, data, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// errorMessage prefers GitHub's JSON "message" and falls back to the raw body.
func errorMessage(data []byte) string {
	var wire struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &wire) == nil && wire.Message != "" {
		return wire.Message
	}
	return strings.TrimSpace(string(data))
}
