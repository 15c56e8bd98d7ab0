// Package vwo is a small client for the VWO REST API (campaign list and
// detail) and the settings.js JSONP endpoint.
package vwo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/headline-goat/vwo-pulse/internal/config"
	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
)

const (
	DefaultBaseURL     = "https://app.vwo.com/api/v2"
	DefaultSettingsURL = "https://dev.visualwebsiteoptimizer.com/dcdn/settings.js"
	DefaultPageSize    = 100

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 * 1024
	breakerName  = "vwo-api"
)

type Client struct {
	baseURL     string
	settingsURL string
	accountID   string
	token       string
	pageSize    int

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithSettingsURL(u string) Option { return func(c *Client) { c.settingsURL = u } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit spaces requests out; the sequential CLI reports use one
// request per second.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithBreaker opens a circuit after the given number of consecutive
// failures and keeps it open for timeout. Zero failures disables it.
// Only list and settings requests pass through the breaker; a failed
// campaign detail affects that campaign alone.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(c *Client) {
		if failures == 0 {
			c.breaker = nil
			return
		}
		c.breaker = newBreaker(failures, timeout)
	}
}

func New(accountID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		settingsURL: DefaultSettingsURL,
		accountID:   accountID,
		token:       token,
		pageSize:    DefaultPageSize,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the vwo config section.
func NewFromConfig(cfg config.VWOConfig, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(cfg.BaseURL),
		WithPageSize(cfg.PageSize),
		WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		WithBreaker(cfg.BreakerFailures, cfg.BreakerTimeout),
	}
	if cfg.SettingsURL != "" {
		base = append(base, WithSettingsURL(cfg.SettingsURL))
	}
	return New(cfg.AccountID, cfg.APIToken, append(base, opts...)...)
}

func newBreaker(failures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors other than 429 say nothing about the API's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := StatusCode(err)
			return code >= 400 && code < 500 && code != http.StatusTooManyRequests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// get performs a GET through the breaker and returns the body of a 2xx
// response. Every other status is an *APIError.
func (c *Client) get(ctx context.Context, endpoint, reqURL string, header http.Header) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	do := func() ([]byte, error) {
		return c.do(ctx, endpoint, reqURL, header)
	}
	if c.breaker == nil {
		return do()
	}

	body, err := c.breaker.Execute(do)
	if IsCircuitOpen(err) {
		metrics.APIRequests.WithLabelValues(endpoint, "rejected").Inc()
	}
	return body, err
}

// getItem is get without the breaker, for per-campaign requests.
func (c *Client) getItem(ctx context.Context, endpoint, reqURL string, header http.Header) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.do(ctx, endpoint, reqURL, header)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) do(ctx context.Context, endpoint, reqURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (c *Client) apiHeader() http.Header {
	h := http.Header{}
	h.Set("token", c.token)
	h.Set("Content-Type", "application/json")
	return h
}

func (c *Client) campaignsURL(query url.Values) string {
	u := fmt.Sprintf("%s/accounts/%s/campaigns", c.baseURL, url.PathEscape(c.accountID))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
