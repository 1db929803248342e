package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kapu/trendscope-go/internal/constants"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Options tunes a Client. Zero values fall back to the package constants; a
// negative Jitter disables jitter.
type Options struct {
	HTTPClient    *http.Client
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxAttempts   int
	BaseDelay     time.Duration
	Jitter        time.Duration
	Clock         util.Clock
}

// Client posts JSON to the analysis endpoints. Calls are throttled, retried with
// exponential backoff on network errors and 5xx, and short-circuited while the
// breaker is open.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *util.CircuitBreaker
	maxAttempts int
	baseDelay   time.Duration
	jitter      time.Duration
	clock       util.Clock
	logger      *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.APIConfig.DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = constants.APIConfig.RateLimitPerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = constants.APIConfig.RateLimitBurst
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = constants.RetryConfig.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = constants.RetryConfig.BaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock()
	}
	if opts.Jitter == 0 {
		opts.Jitter = constants.RetryConfig.Jitter
	}

	return &Client{
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		jitter:      opts.Jitter,
		clock:       opts.Clock,
		breaker: util.NewCircuitBreaker(
			"upstream",
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			opts.Clock,
			logger,
		),
		logger: logger,
	}
}

// CircuitStatus exposes the breaker for health reporting.
func (c *Client) CircuitStatus() util.CircuitBreakerStatus {
	return c.breaker.GetStatus()
}

// Post sends body as JSON to url and returns the response body with any markdown
// code fence removed. setting names the configuration key that provides url; an
// empty url is a ConfigError and no request is made.
func (c *Client) Post(ctx context.Context, setting, url string, body any) ([]byte, error) {
	if url == "" {
		return nil, errors.NewConfigError(fmt.Sprintf("%s is not configured", setting), setting)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewAPIError("failed to marshal request", 400, map[string]any{
			"url": url,
		}).WithCause(err)
	}

	if !c.breaker.CanExecute() {
		status := c.breaker.GetStatus()
		var retryAfter time.Duration
		if status.NextRetryTime != nil {
			retryAfter = status.NextRetryTime.Sub(c.clock.Now())
		}
		c.logger.Warn("Circuit breaker is open", zap.String("url", url), zap.Duration("retry_after", retryAfter))
		return nil, errors.NewAPIError("circuit breaker open", 503, map[string]any{
			"url":            url,
			"retry_after_ms": retryAfter.Milliseconds(),
		})
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if !c.breaker.CanExecute() {
				break
			}
			delay := c.computeDelay(attempt - 1)
			c.logger.Warn("Upstream request failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, errors.NewAPIError("request cancelled", 499, map[string]any{"url": url}).WithCause(err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.NewAPIError("rate limiter wait failed", 499, map[string]any{"url": url}).WithCause(err)
		}

		respBody, retry, err := c.doRequest(ctx, url, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return []byte(util.StripCodeFence(string(respBody))), nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, lastErr
}

// doRequest performs one round-trip. retry reports whether another attempt may
// succeed.
func (c *Client) doRequest(ctx context.Context, url string, payload []byte) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, errors.NewAPIError("failed to create request", 500, map[string]any{
			"url": url,
		}).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, errors.NewAPIError("request cancelled", 499, map[string]any{"url": url}).WithCause(err)
		}
		c.breaker.RecordFailure(0)
		return nil, true, errors.NewAPIError("request failed", 502, map[string]any{
			"url": url,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, int64(constants.APIConfig.ErrorBodyLimit)))
		apiErr := errors.NewAPIError(
			fmt.Sprintf("upstream error: %s", resp.Status),
			resp.StatusCode,
			map[string]any{
				"url":  url,
				"body": string(snippet),
			},
		)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.breaker.RecordFailure(constants.CircuitBreakerConfig.RateLimitTimeout)
			return nil, false, apiErr
		case resp.StatusCode >= 500:
			c.breaker.RecordFailure(0)
			return nil, true, apiErr
		default:
			return nil, false, apiErr
		}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.NewAPIError("failed to read response", 502, map[string]any{
			"url": url,
		}).WithCause(err)
	}
	return body, false, nil
}

func (c *Client) computeDelay(attempt int) time.Duration {
	base := c.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	var jitter time.Duration
	if c.jitter > 0 {
		jitter = time.Duration(rand.Float64() * float64(c.jitter))
	}
	return base + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
