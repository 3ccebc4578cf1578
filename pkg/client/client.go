// Package client provides a Go client for the obz backend.
//
// It covers the calls an instrumented training or inference job makes:
//   - API token verification.
//   - Project initialization.
//   - Reference entries and their feature uploads (float32 or float16 packed).
//   - Image uploads and metric/parameter log entries.
//
// Requests are JSON (multipart for images), authenticated with a bearer
// token, tagged with an X-Request-ID and guarded by a circuit breaker so an
// unreachable backend fails fast instead of stalling the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/obz-ai/obz/pkg/metrics"
	"github.com/sony/gobreaker"
)

// --- Custom Errors ---

var (
	// ErrMissingToken is returned by calls that need an API token when none is configured.
	ErrMissingToken = errors.New("api token not configured")
	// ErrInvalidToken is returned by VerifyAPIToken when the backend rejects the token.
	ErrInvalidToken = errors.New("api token rejected")
	// ErrCircuitOpen is returned while the circuit breaker refuses requests.
	ErrCircuitOpen = errors.New("backend unavailable: circuit open")

	errBuildRequest = errors.New("failed to create request")
)

// APIError represents an error returned by the obz backend (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- Client ---

// Client talks to the obz backend. It is safe for concurrent use.
type Client struct {
	api        APIConfig
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker // nil when disabled
	logger     *slog.Logger
}

// New creates a new obz client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		api:        cfg.API,
		token:      cfg.APIToken,
		httpClient: httpClient,
		logger:     logger,
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, logger)
	}
	return c
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        "obz-backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		// Client errors (4xx), caller cancellations and requests that never
		// left the process say nothing about backend health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			if errors.Is(err, ErrUnknownEndpoint) || errors.Is(err, errBuildRequest) {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[Client] Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

// API returns the endpoint configuration the client resolves URLs against.
func (c *Client) API() APIConfig { return c.api }

// request is one HTTP call to a named endpoint.
type request struct {
	endpoint    string
	method      string
	body        []byte
	contentType string
}

// do executes a request through the circuit breaker and returns the response body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if c.breaker == nil {
		return c.send(ctx, r)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, r)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// send performs the HTTP round trip, records metrics and maps error statuses to *APIError.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	url, err := c.api.URL(r.endpoint)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if r.body != nil {
		reqBody = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBuildRequest, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	metrics.ClientRequestDuration.WithLabelValues(r.endpoint).Observe(duration.Seconds())
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues(r.endpoint, "error").Inc()
		c.logger.Warn("[Client] Request failed", "endpoint", r.endpoint, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	metrics.ClientRequestsTotal.WithLabelValues(r.endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("[Client] Request",
		"endpoint", r.endpoint,
		"method", r.method,
		"status", resp.StatusCode,
		"duration", duration.String(),
		"request_id", requestID,
	)

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// errorMessage extracts a readable message from an error response body.
func errorMessage(body []byte) string {
	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if errResp.Detail != "" {
			return errResp.Detail
		}
	}
	return string(body)
}

// jsonRequest POSTs payload as JSON to endpoint and decodes the response into out (if non-nil).
func (c *Client) jsonRequest(ctx context.Context, endpoint string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
	}

	respBody, err := c.do(ctx, request{
		endpoint:    endpoint,
		method:      http.MethodPost,
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("invalid JSON response for %s: %w", endpoint, err)
	}
	return nil
}
