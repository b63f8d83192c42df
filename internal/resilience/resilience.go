// Package resilience wraps outbound HTTP calls in a circuit breaker with an
// optional retry loop. The document-store REST client and the news providers
// share it.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mynews-app/service_layer/internal/app/metrics"
)

// RetryConfig configures retries. MaxRetries of zero disables them.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig retries transient failures three times with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// NoRetryConfig treats every failure as terminal for the call. Store and
// news calls use it unless configured otherwise.
func NoRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	return cfg
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryableStatus(code int) bool {
	return slices.Contains(c.RetryableStatusCodes, code)
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker's state gauge. Unnamed breakers are not exported.
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
	// OnStateChange runs on its own goroutine after every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after five failures for thirty seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker fails fast after repeated upstream failures.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.RWMutex
	state     CircuitState
	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg, state: CircuitClosed}
	if cfg.Name != "" {
		metrics.SetCircuitState(cfg.Name, int(CircuitClosed))
	}
	return cb
}

// Allow reports whether a call may proceed. An open circuit whose timeout
// elapsed moves to half-open and lets the call through as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return nil
	}
	if time.Since(cb.openedAt) <= cb.cfg.Timeout {
		return ErrCircuitOpen
	}
	cb.setState(CircuitHalfOpen)
	return nil
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure records a failed call. Any failure while half-open reopens
// the circuit.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastError = err
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case CircuitClosed:
		cb.failures = 0
	case CircuitOpen:
		cb.openedAt = time.Now()
	}
	if cb.cfg.Name != "" {
		metrics.SetCircuitState(cb.cfg.Name, int(to))
	}
	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the most recent recorded failure.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// =============================================================================
// Client
// =============================================================================

// Config configures a Client.
type Config struct {
	// Name labels the circuit breaker gauge, e.g. "newsapi" or "supabase".
	Name                 string
	BaseClient           *http.Client
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// Stats counts calls made through a Client.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

// Client sends requests through a circuit breaker and retry loop.
type Client struct {
	client  *http.Client
	retry   RetryConfig
	breaker *CircuitBreaker

	total, succeeded, failed, retried atomic.Int64
}

// NewClient creates a client. A zero breaker config gets the defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseClient == nil {
		cfg.BaseClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}
	}
	breakerCfg := cfg.CircuitBreakerConfig
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg = DefaultCircuitBreakerConfig()
		breakerCfg.OnStateChange = cfg.CircuitBreakerConfig.OnStateChange
	}
	if breakerCfg.Name == "" {
		breakerCfg.Name = cfg.Name
	}
	return &Client{
		client:  cfg.BaseClient,
		retry:   cfg.RetryConfig,
		breaker: NewCircuitBreaker(breakerCfg),
	}
}

// Do sends req. A response whose status is still retryable after the last
// attempt is returned as-is and counted as a failure.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.total.Add(1)
	if err := c.breaker.Allow(); err != nil {
		c.failed.Add(1)
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.retried.Add(1)
			select {
			case <-req.Context().Done():
				c.failed.Add(1)
				return nil, req.Context().Err()
			case <-time.After(c.retry.backoff(attempt)):
			}
			next, err := rewind(req)
			if err != nil {
				return nil, c.fail(err)
			}
			req = next
		}
		final := attempt >= c.retry.MaxRetries

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if !final && transient(err) {
				continue
			}
			return nil, c.fail(err)
		}
		if c.retry.retryableStatus(resp.StatusCode) {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			if !final {
				resp.Body.Close()
				continue
			}
			_ = c.fail(lastErr)
			return resp, nil
		}

		c.breaker.RecordSuccess()
		c.succeeded.Add(1)
		return resp, nil
	}
}

func (c *Client) fail(err error) error {
	c.breaker.RecordFailure(err)
	c.failed.Add(1)
	return err
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

// transient reports whether err is a network timeout worth retrying.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPError is recorded for responses with a retryable status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Stats returns the call counters.
func (c *Client) Stats() Stats {
	return Stats{
		Total:     c.total.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Retried:   c.retried.Load(),
	}
}

// CircuitState returns the current circuit breaker state.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// HTTPClient exposes the client as a plain *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: roundTripper{client: c},
		Timeout:   c.client.Timeout,
	}
}

type roundTripper struct {
	client *Client
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.client.Do(req)
}
