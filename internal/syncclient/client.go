// Package syncclient is the HTTP client for the atuin sync server. It
// implements the transport the sync engine drives, plus the account
// lifecycle calls used by the auth commands.
package syncclient

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
	"time"

	"github.com/simon-b/atuin/internal/syncproto"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for the atuin sync server.
type Client struct {
	BaseURL string
	Session string
	HTTP    *http.Client
}

// New creates a new sync client. Session may be empty for the
// unauthenticated calls (register, login, health).
func New(baseURL, session string) *Client {
	return &Client{
		BaseURL: baseURL,
		Session: session,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Auth types (mirrors internal/api/auth.go, independently defined) ---

// SessionResponse is the response from /register and /login.
type SessionResponse struct {
	Session  string `json:"session"`
	Username string `json:"username"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Account methods ---

// Register creates a new account and returns its first session key.
func (c *Client) Register(ctx context.Context, username, email, password string) (*SessionResponse, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var resp SessionResponse
	if err := c.doNoAuth(ctx, "POST", "/register", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and returns a fresh session key.
func (c *Client) Login(ctx context.Context, username, password string) (*SessionResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp SessionResponse
	if err := c.doNoAuth(ctx, "POST", "/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the current session key server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "POST", "/logout", nil, nil)
}

// DeleteAccount removes the account and all its stored history.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/account", nil, nil)
}

// --- Sync methods ---

// Push sends a batch of encrypted records to the server.
func (c *Client) Push(ctx context.Context, req *syncproto.PushRequest) (*syncproto.PushResponse, error) {
	var resp syncproto.PushResponse
	if err := c.do(ctx, "POST", "/history", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches one page of records after the given sequence number.
func (c *Client) Pull(ctx context.Context, since int64, limit int) (*syncproto.PullResponse, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatInt(since, 10))
	params.Set("limit", strconv.Itoa(limit))

	var resp syncproto.PullResponse
	if err := c.do(ctx, "GET", "/history?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Count returns the server-side record count for the account.
func (c *Client) Count(ctx context.Context) (int64, error) {
	var resp syncproto.CountResponse
	if err := c.do(ctx, "GET", "/history/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// errorEnvelope matches the server's error response wrapper.
type errorEnvelope struct {
	Error apiError `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, false)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.Session != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, env.Error.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, env.Error.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, env.Error.Message)
			default:
				return &env.Error
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
