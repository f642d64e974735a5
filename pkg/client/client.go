// Package client calls a running SSO token exchange endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	exchangePath = "/generateSsoToken"
	healthPath   = "/health"
)

// Client talks to an exchange server or a deployed function
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPath overrides the exchange path. A deployed function serves the
// exchange at its own URL, so use "/" there.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       exchangePath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode    int
	CorrelationID string
	Message       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error %d: '%s' (correlation: %s)", e.StatusCode, e.Message, e.CorrelationID)
}

type exchangePayload struct {
	IDToken string `json:"idToken"`
}

type exchangeResult struct {
	CustomToken string `json:"customToken"`
}

type errorResult struct {
	Error string `json:"error"`
}

// HealthStatus is the body of the health endpoint
type HealthStatus struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

// Exchange trades idToken for a custom token. The correlation ID of the
// response is returned alongside, also on failure.
func (c *Client) Exchange(ctx context.Context, idToken string) (string, string, error) {
	body, err := json.Marshal(exchangePayload{IDToken: idToken})
	if err != nil {
		return "", "", fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result exchangeResult
	correlation, err := c.do(req, &result)
	if err != nil {
		return "", correlation, err
	}
	if result.CustomToken == "" {
		return "", correlation, fmt.Errorf("response carries no custom token")
	}
	return result.CustomToken, correlation, nil
}

// Health queries the health endpoint of a standalone server
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var status HealthStatus
	if _, err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	correlation := resp.Header.Get("X-Correlation-ID")

	if resp.StatusCode >= 400 {
		return correlation, parseErrorResponse(resp, correlation)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return correlation, fmt.Errorf("decoding response: %w", err)
	}
	return correlation, nil
}

// parseErrorResponse reads {"error": "..."} bodies and falls back to the
// raw text, which is what the 405 answer carries.
func parseErrorResponse(resp *http.Response, correlation string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(body))
	var errResp errorResult
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return APIError{
		StatusCode:    resp.StatusCode,
		CorrelationID: correlation,
		Message:       message,
	}
}
