// Package client provides the upstream HTTP page fetcher with retry,
// circuit breaking, block tracking and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/finnews-client/pkg/logging"
	"github.com/Sternrassler/finnews-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 60 * time.Second

// RawPage is one upstream response whose body has been validated as JSON.
type RawPage struct {
	URL        string
	StatusCode int
	Body       json.RawMessage
}

// Client fetches single pages from the upstream news feeds.
// Breaker and block state are kept per upstream host, so one failing
// upstream does not gate the others.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	blocks   map[string]*ratelimit.Tracker
}

// BreakerConfig configures the circuit breaker around upstream requests.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. 0 disables the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration

	// Interval clears failure counts while closed.
	Interval time.Duration
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// Retry controls per-page retries.
	Retry RetryConfig

	// Breaker controls the circuit breaker.
	Breaker BreakerConfig

	// Redis enables shared upstream block tracking. Optional.
	Redis *redis.Client

	// BlockCooldown is used when a block response has no Retry-After.
	BlockCooldown time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			Interval:            60 * time.Second,
		},
		BlockCooldown: ratelimit.DefaultCooldown,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	logger := logging.NewLogger(logging.ComponentClient)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:   cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		blocks:   make(map[string]*ratelimit.Tracker),
	}, nil
}

// breakerFor returns the circuit breaker of host, nil when breaking is off.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	if c.config.Breaker.ConsecutiveFailures == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	threshold := c.config.Breaker.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    c.config.Breaker.Interval,
		Timeout:     c.config.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			breakerStateChangesTotal.WithLabelValues(to.String()).Inc()
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	c.breakers[host] = cb
	return cb
}

// trackerFor returns the block tracker of host, nil without Redis.
func (c *Client) trackerFor(host string) *ratelimit.Tracker {
	if c.config.Redis == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.blocks[host]; ok {
		return t
	}
	t := ratelimit.NewTracker(c.config.Redis, host, c.config.BlockCooldown, logging.NewLogger(logging.ComponentRateLimit))
	c.blocks[host] = t
	return t
}

// FetchPage issues one GET for rawURL and returns the JSON body.
// Failures are returned as *FetchError. Credentials in the query string
// never appear in logs, errors or the returned page.
func (c *Client) FetchPage(ctx context.Context, rawURL string) (*RawPage, error) {
	endpoint := endpointLabel(rawURL)
	shown := Redact(rawURL)
	host := hostOf(rawURL)

	if blocks := c.trackerFor(host); blocks != nil {
		allowed, err := blocks.ShouldAllowRequest(ctx)
		if err != nil {
			// Redis trouble must not take the feed down with it.
			c.logger.Warn().Err(err).Msg("Block state check failed, continuing")
		} else if !allowed {
			fetchErrorsTotal.WithLabelValues(string(KindBlocked)).Inc()
			requestsTotal.WithLabelValues(endpoint, "blocked").Inc()
			return nil, &FetchError{Kind: KindBlocked, URL: shown, Err: ErrBlocked}
		}
	}

	c.logger.Info().
		Str("url", shown).
		Msg("Requesting page")

	var page *RawPage
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		p, err := c.execute(ctx, host, rawURL, shown, endpoint)
		if err != nil {
			fetchErrorsTotal.WithLabelValues(string(KindOf(err))).Inc()
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// execute runs one attempt, through the circuit breaker when enabled.
func (c *Client) execute(ctx context.Context, host, rawURL, shown, endpoint string) (*RawPage, error) {
	breaker := c.breakerFor(host)
	if breaker == nil {
		return c.doRequest(ctx, host, rawURL, shown, endpoint)
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, host, rawURL, shown, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(endpoint, "breaker_open").Inc()
			return nil, &FetchError{Kind: KindTransport, URL: shown, Err: err}
		}
		return nil, err
	}
	return result.(*RawPage), nil
}

// doRequest performs the HTTP round trip and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, host, rawURL, shown, endpoint string) (*RawPage, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: shown, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = shown
		}
		c.logger.Error().Err(err).Str("url", shown).Msg("HTTP request failed")
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &FetchError{Kind: KindTransport, URL: shown, Err: err}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	requestsTotal.WithLabelValues(endpoint, status).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().
			Str("url", shown).
			Int("status", resp.StatusCode).
			Msg("Upstream returned error status")

		if blocks := c.trackerFor(host); blocks != nil && ratelimit.IsBlockStatus(resp.StatusCode) {
			if _, err := blocks.RecordBlock(ctx, resp.StatusCode, ratelimit.ParseRetryAfter(resp.Header)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record upstream block")
			}
		}

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{
			Kind:       KindHTTP,
			URL:        shown,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: shown, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Error().Err(err).Str("url", shown).Msg("Response body is not valid JSON")
		return nil, &FetchError{Kind: KindDecode, URL: shown, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str("url", shown).
		Int("status", resp.StatusCode).
		RawJSON("body", raw).
		Msg("Received page")

	return &RawPage{
		URL:        shown,
		StatusCode: resp.StatusCode,
		Body:       raw,
	}, nil
}

// endpointLabel reduces a URL to host+path so metric cardinality stays bounded.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host + u.Path
}

// hostOf returns the host[:port] of rawURL, the scope of breaker and block state.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// redactedParams are query parameters whose values are hidden by Redact.
var redactedParams = []string{"apikey", "api_key", "token"}

// Redact hides credential query parameters in rawURL.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, key := range redactedParams {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BreakerState reports the circuit breaker state for the host of rawURL,
// "disabled" when off. A host never contacted reports closed.
func (c *Client) BreakerState(rawURL string) string {
	if c.config.Breaker.ConsecutiveFailures == 0 {
		return "disabled"
	}
	return c.breakerFor(hostOf(rawURL)).State().String()
}
