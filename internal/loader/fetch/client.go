package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Config controls transport behavior
type Config struct {
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RPS limits outgoing requests per second; 0 means unlimited
	RPS       float64
	UserAgent string
	Headers   map[string]string
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
		UserAgent:    "AgentOS-AppHost/1.0",
	}
}

// Response is one completed fetch
type Response struct {
	// URL is the final location after redirects
	URL         string
	RequestURL  string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client fetches resources with retries, rate limiting and per-host breakers
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	mu       sync.RWMutex
}

// NewClient creates a client from cfg
func NewClient(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	// Retries happen in the transport; resty only shapes requests
	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	restyClient.SetHeaders(cfg.Headers)

	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.6)
		},
		IsSuccessful: isUpstreamHealthy,
	})

	c := &Client{resty: restyClient, breakers: breakers}
	c.SetRateLimit(cfg.RPS)
	return c
}

// isUpstreamHealthy keeps client-side errors (4xx) from tripping a breaker
func isUpstreamHealthy(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500
	}
	return errors.Is(err, context.Canceled)
}

// SetRateLimit configures requests per second; rps <= 0 removes the limit
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetHeader(key, value)
}

// Fetch GETs rawURL and returns the body with its final URL
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	breaker := c.breakers.Get(parsed.Host)
	if err := breaker.Allow(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	c.mu.RLock()
	limiter := c.limiter
	req := c.resty.R().SetContext(ctx)
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch %s: rate limit: %w", rawURL, err)
	}

	start := time.Now()
	return resilience.Do(breaker, func() (*Response, error) {
		resp, err := req.Get(rawURL)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}

		out := &Response{
			URL:         finalURL(resp, rawURL),
			RequestURL:  rawURL,
			StatusCode:  resp.StatusCode(),
			ContentType: resp.Header().Get("Content-Type"),
			Body:        resp.Body(),
			Duration:    time.Since(start),
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return out, &StatusError{URL: rawURL, StatusCode: resp.StatusCode()}
		}
		return out, nil
	})
}

// BreakerStates returns the breaker state per origin host
func (c *Client) BreakerStates() map[string]resilience.State {
	return c.breakers.States()
}

func finalURL(resp *resty.Response, fallback string) string {
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		return raw.Request.URL.String()
	}
	return fallback
}
