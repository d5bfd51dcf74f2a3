package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/dwd-warning-service/internal/circuitbreaker"
	"github.com/kjstillabower/dwd-warning-service/internal/models"
	"github.com/kjstillabower/dwd-warning-service/internal/observability"
)

// StatesClient fetches the full entity listing from the host.
type StatesClient interface {
	GetStates(ctx context.Context) ([]models.Entity, error)
	Ping(ctx context.Context) error
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// HomeAssistantClient talks to the Home Assistant REST API.
type HomeAssistantClient struct {
	token          string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewHomeAssistantClient(token, baseURL string, timeout time.Duration) (*HomeAssistantClient, error) {
	return NewHomeAssistantClientWithRetry(token, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewHomeAssistantClientWithRetry(token, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HomeAssistantClient, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrUnauthorized)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &HomeAssistantClient{
		token:          token,
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards GetStates with cb. Ping is never guarded so health
// checks still see the real upstream. Call before the client is shared.
func (c *HomeAssistantClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// GetStates returns every entity known to Home Assistant (GET /api/states).
// Rate limits, 5xx responses and timeouts are retried with exponential backoff.
// While the circuit breaker is open it fails fast with circuitbreaker.ErrOpen.
func (c *HomeAssistantClient) GetStates(ctx context.Context) ([]models.Entity, error) {
	var states []models.Entity
	fetch := func() error {
		var err error
		states, err = c.getStatesWithRetry(ctx)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		observability.HomeAssistantErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return nil, err
	}
	return states, nil
}

func (c *HomeAssistantClient) getStatesWithRetry(ctx context.Context) ([]models.Entity, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.HomeAssistantRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.callStates(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HomeAssistantClient) callStates(ctx context.Context) ([]models.Entity, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, "/api/states")
	if err != nil {
		observability.HomeAssistantCallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.HomeAssistantCallsTotal.WithLabelValues("error").Inc()
		observability.HomeAssistantDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.HomeAssistantCallsTotal.WithLabelValues(status).Inc()
	observability.HomeAssistantDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var states []models.Entity
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return states, nil
}

func (c *HomeAssistantClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return true
	}

	return false
}

func (c *HomeAssistantClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *HomeAssistantClient) buildRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func (c *HomeAssistantClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// Ping checks that the API is reachable and the token is accepted (GET /api/).
func (c *HomeAssistantClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, "/api/")
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.handleErrorResponse(resp)
}
