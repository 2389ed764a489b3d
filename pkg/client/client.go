package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the control API of a running glosar process.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

const defaultBaseURL = "http://127.0.0.1:8787/api"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if a run is serving the control API.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Control API unreachable", "error", err)
		return false
	}
	return true
}

func (c *Client) Pause(ctx context.Context) (CommandResponse, error) {
	return c.command(ctx, "pause")
}

func (c *Client) Resume(ctx context.Context) (CommandResponse, error) {
	return c.command(ctx, "resume")
}

// Skip marks the current guide to be skipped. It only takes effect while the
// run is paused.
func (c *Client) Skip(ctx context.Context) (CommandResponse, error) {
	return c.command(ctx, "skip")
}

func (c *Client) Stop(ctx context.Context) (CommandResponse, error) {
	return c.command(ctx, "stop")
}

func (c *Client) Status(ctx context.Context) (Summary, error) {
	var s Summary
	err := c.do(ctx, http.MethodGet, c.baseURL+"/status", &s)
	return s, err
}

// Records lists the status records of the run, optionally filtered.
func (c *Client) Records(ctx context.Context, q RecordsQuery) ([]StatusRecord, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Since > 0 {
		params.Set("since", strconv.Itoa(q.Since))
	}
	u := c.baseURL + "/records"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var out []StatusRecord
	if err := c.do(ctx, http.MethodGet, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) command(ctx context.Context, name string) (CommandResponse, error) {
	c.logger.Debug("Sending run command", "command", name)
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/"+name, &resp)
	return resp, err
}

// do performs the request and decodes a 200 body into out.
func (c *Client) do(ctx context.Context, method, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}
