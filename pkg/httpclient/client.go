// Package httpclient builds the retryablehttp client the harvester issues
// every source-API request through. It classifies failures into
// transient (retry) versus permanent (give up), honors Retry-After on
// 429 responses, and multiplies backoff after repeated rate limiting.
package httpclient

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"hydropipe/pkg/apperror"
	"hydropipe/pkg/telemetry"
)

// Config tunes the retry envelope for one harvester client.
type Config struct {
	Timeout            time.Duration
	MaxRetries         int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	BackoffMultiplier  float64
	RateLimitMultiplier float64
}

// DefaultConfig matches the harvester defaults: 3 retries, exponential
// backoff from 1s to 30s with base 2, raised to base 4 whenever a 429 is
// seen.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		InitialBackoff:      1 * time.Second,
		MaxBackoff:          30 * time.Second,
		BackoffMultiplier:   2.0,
		RateLimitMultiplier: 2.0,
	}
}

// Client is a thin wrapper around retryablehttp.Client that exposes a
// plain *http.Client for callers (the harvester, mostly) while keeping
// the retry/backoff policy centralized.
type Client struct {
	std  *http.Client
	spec string
}

// New builds a Client for spanName (used to label traces), wiring
// TracedTransport as the inner transport so every retried attempt gets
// its own span.
func New(cfg Config, spanName string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.InitialBackoff
	retryClient.RetryWaitMax = cfg.MaxBackoff
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.HTTPClient.Transport = &telemetry.TracedTransport{
		Next:     http.DefaultTransport,
		SpanName: spanName,
	}

	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = backoffWithRateLimitMultiplier(cfg)

	return &Client{std: retryClient.StandardClient(), spec: spanName}
}

// Do issues req through the retry envelope.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.std.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTransientSource, fmt.Sprintf("request to %s", req.URL.Host))
	}
	return resp, nil
}

// Underlying returns the plain *http.Client, for callers that need to
// pass it elsewhere (e.g. a generated API client constructor).
func (c *Client) Underlying() *http.Client {
	return c.std
}

// checkRetry classifies responses/errors the way §7's error taxonomy
// requires: connection errors, timeouts, 429, and 5xx are transient;
// everything else (4xx other than 429, successful 2xx/3xx) stops retrying.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return true, nil
	}

	if resp == nil {
		return true, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	if resp.StatusCode >= 400 {
		return false, nil
	}
	return false, nil
}

// backoffWithRateLimitMultiplier honors a Retry-After header verbatim
// when present (per-second or HTTP-date), and otherwise applies
// exponential backoff min * base^attempt, where base is BackoffMultiplier,
// further multiplied by RateLimitMultiplier for 429 responses.
func backoffWithRateLimitMultiplier(cfg Config) retryablehttp.Backoff {
	return func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if wait, ok := retryAfter(resp); ok {
				return wait
			}
		}

		multiplier := cfg.BackoffMultiplier
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			multiplier *= cfg.RateLimitMultiplier
		}

		wait := float64(min) * math.Pow(multiplier, float64(attemptNum))
		if wait > float64(max) {
			return max
		}
		return time.Duration(wait)
	}
}

// retryAfter parses the Retry-After header, which may be either a
// delay in seconds or an HTTP-date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second, true
	}

	if when, err := http.ParseTime(header); err == nil {
		wait := time.Until(when)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}
