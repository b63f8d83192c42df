// Package httputil provides HTTP helpers shared by the services: JSON
// response writers, request decoding and the client used for third-party APIs.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mynews-app/service_layer/internal/logging"
	"github.com/mynews-app/service_layer/internal/resilience"
)

// =============================================================================
// API Client
// =============================================================================

// APIClient calls a third-party JSON API (news search, bias ratings, text
// extraction, summarization). Every request passes through a circuit breaker.
type APIClient struct {
	httpClient   *resilience.Client
	baseURL      string
	apiKey       string
	apiKeyParam  string
	apiKeyHeader string
	userAgent    string
}

// APIClientConfig configures the API client.
type APIClientConfig struct {
	// Name labels the client's circuit breaker gauge.
	Name    string
	BaseURL string
	APIKey  string
	// APIKeyParam sends the key as a query parameter when set.
	APIKeyParam string
	// APIKeyHeader sends the key as a request header when set.
	APIKeyHeader string
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(cfg APIClientConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	retry := resilience.NoRetryConfig()
	if cfg.MaxRetries > 0 {
		retry = resilience.DefaultRetryConfig()
		retry.MaxRetries = cfg.MaxRetries
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "mynews-service/1.0"
	}

	return &APIClient{
		httpClient: resilience.NewClient(resilience.Config{
			Name:                 cfg.Name,
			BaseClient:           base,
			RetryConfig:          retry,
			CircuitBreakerConfig: resilience.DefaultCircuitBreakerConfig(),
		}),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		apiKeyParam:  cfg.APIKeyParam,
		apiKeyHeader: cfg.APIKeyHeader,
		userAgent:    userAgent,
	}
}

// BaseURL returns the configured base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Do executes a request against path (relative to the base URL, or absolute)
// with the given query parameters and optional JSON body.
func (c *APIClient) Do(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}

	params := url.Values{}
	for k, v := range query {
		params[k] = v
	}
	if c.apiKey != "" && c.apiKeyParam != "" {
		params.Set(c.apiKeyParam, c.apiKey)
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" && c.apiKeyHeader != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	if traceID := logging.TraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *APIClient) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// GetJSON performs a GET request and decodes the JSON response into target.
func (c *APIClient) GetJSON(ctx context.Context, path string, query url.Values, target interface{}) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, target)
}

// GetRaw performs a GET request and returns the raw response body.
func (c *APIClient) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return ReadResponse(resp)
}

// PostRaw performs a POST request and returns the raw response body.
func (c *APIClient) PostRaw(ctx context.Context, path string, body interface{}) ([]byte, error) {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return ReadResponse(resp)
}

// CircuitState reports the breaker state for /info.
func (c *APIClient) CircuitState() string {
	return c.httpClient.CircuitState().String()
}

// DecodeResponse decodes a JSON response into the target struct.
func DecodeResponse(resp *http.Response, target interface{}) error {
	body, err := ReadResponse(resp)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ReadResponse reads and closes the response body, turning error statuses into errors.
func ReadResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return nil, fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// StatusError is returned for upstream responses with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}
